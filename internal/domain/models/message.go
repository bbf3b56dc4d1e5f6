package models

import "time"

// Message is a single post collected from a monitored channel. Messages are
// owned by the ingestion pipeline and read-only to the scoring engine.
type Message struct {
	ID        string    `json:"id" db:"id"`
	Channel   string    `json:"channel" db:"channel"`
	Text      string    `json:"text" db:"text"`
	Timestamp time.Time `json:"timestamp" db:"posted_at"`

	// ImageRef points at stored media for the external detection service.
	// Empty when the message carried no image.
	ImageRef string `json:"image_ref,omitempty" db:"image_ref"`

	// Image holds detection output when it was already computed at ingest
	// time. Nil means "fetch from the vision collaborator" (if ImageRef is
	// set) or "no image signals".
	Image ImageDetection `json:"image,omitempty" db:"image_labels"`
}

// ImageDetection maps a detected-object label to a confidence in [0,1],
// e.g. "pills" -> 0.92. Produced by the external vision collaborator.
type ImageDetection map[string]float64

// HasText reports whether the message carries any scoreable text
func (m *Message) HasText() bool {
	return m != nil && m.Text != ""
}
