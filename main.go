// main.go - Standalone Risk Indicator API (single-binary demo, no external services)
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// ============================================================================
// DATA MODELS
// ============================================================================

type RiskIndicator struct {
	MessageID   string    `json:"message_id"`
	Channel     string    `json:"channel"`
	Score       float64   `json:"score"`
	RiskLevel   string    `json:"risk_level"`
	Flags       []string  `json:"flags"`
	Mentions    []string  `json:"mentions"`
	RuleVersion string    `json:"rule_version"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
	Confidence  float64   `json:"confidence"`
}

type IndicatorStore struct {
	Indicators  map[string]*RiskIndicator `json:"indicators"`
	LastUpdated time.Time                 `json:"last_updated"`
	mu          sync.RWMutex
}

type DetectRequest struct {
	MessageID string `json:"message_id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Text      string `json:"text"`
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ============================================================================
// GLOBAL STATE
// ============================================================================

var (
	store  *IndicatorStore
	apiKey string
)

const ruleVersion = "demo-v1"

// Ordered rule table: first matching clause decides the score
var ruleTable = []struct {
	flags []string
	score float64
}{
	{[]string{"has_unverified_claims"}, 0.9},
	{[]string{"unregistered_offer"}, 0.85},
	{[]string{"insider_term"}, 0.8},
	{[]string{"contains_urgent_language"}, 0.7},
}

const defaultScore = 0.1

var flagTerms = map[string][]string{
	"contains_urgent_language": {"limited stock", "act now", "last chance", "today only", "hurry"},
	"has_unverified_claims":    {"guaranteed returns", "100% effective", "miracle cure", "risk-free"},
	"unregistered_offer":       {"no prescription", "unregistered", "no license needed"},
	"insider_term":             {"insider tip", "inside info", "pre-ipo"},
}

var productDictionary = map[string]string{
	"paracetamol": "paracetamol",
	"parasetamol": "paracetamol",
	"ibuprofen":   "ibuprofen",
	"sildenafil":  "sildenafil",
	"viagra":      "sildenafil",
	"ozempic":     "semaglutide",
	"semaglutide": "semaglutide",
}

// ============================================================================
// INITIALIZATION
// ============================================================================

func init() {
	store = &IndicatorStore{
		Indicators:  make(map[string]*RiskIndicator),
		LastUpdated: time.Now(),
	}

	apiKey = os.Getenv("API_KEY")
	if apiKey == "" {
		apiKey = "default-dev-key" // For development only
		log.Println("WARNING: Using default API key. Set API_KEY environment variable for production.")
	}
}

// ============================================================================
// SCORING PIPELINE
// ============================================================================

func evaluateFlags(text string) []string {
	lowered := strings.ToLower(text)
	var fired []string
	names := make([]string, 0, len(flagTerms))
	for name := range flagTerms {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, term := range flagTerms[name] {
			if strings.Contains(lowered, term) {
				fired = append(fired, name)
				break
			}
		}
	}
	return fired
}

func scoreFlags(flags []string) float64 {
	set := make(map[string]bool, len(flags))
	for _, f := range flags {
		set[f] = true
	}
	for _, clause := range ruleTable {
		matched := true
		for _, f := range clause.flags {
			if !set[f] {
				matched = false
				break
			}
		}
		if matched {
			return clause.score
		}
	}
	return defaultScore
}

func riskLevelFor(score float64) string {
	switch {
	case score >= 0.7:
		return "high"
	case score >= 0.4:
		return "medium"
	default:
		return "low"
	}
}

func extractProducts(text string) []string {
	lowered := strings.ToLower(text)
	type hit struct {
		pos       int
		canonical string
	}
	var hits []hit
	surfaces := make([]string, 0, len(productDictionary))
	for s := range productDictionary {
		surfaces = append(surfaces, s)
	}
	sort.Strings(surfaces)
	for _, s := range surfaces {
		if pos := strings.Index(lowered, s); pos >= 0 {
			hits = append(hits, hit{pos: pos, canonical: productDictionary[s]})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	seen := make(map[string]bool)
	var mentions []string
	for _, h := range hits {
		if !seen[h.canonical] {
			seen[h.canonical] = true
			mentions = append(mentions, h.canonical)
		}
	}
	return mentions
}

func analyze(req DetectRequest) *RiskIndicator {
	flags := evaluateFlags(req.Text)
	score := scoreFlags(flags)

	confidence := score + 0.1
	if confidence > 0.9 {
		confidence = 0.9
	}

	return &RiskIndicator{
		MessageID:   req.MessageID,
		Channel:     req.Channel,
		Score:       score,
		RiskLevel:   riskLevelFor(score),
		Flags:       flags,
		Mentions:    extractProducts(req.Text),
		RuleVersion: ruleVersion,
		AnalyzedAt:  time.Now().UTC(),
		Confidence:  confidence,
	}
}

// ============================================================================
// HTTP HANDLERS
// ============================================================================

func handleDetect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, APIResponse{Success: false, Error: "invalid request body"})
		return
	}

	indicator := analyze(req)

	// Persist only when the caller supplied a message id
	if req.MessageID != "" {
		store.mu.Lock()
		store.Indicators[req.MessageID] = indicator
		store.LastUpdated = time.Now()
		store.mu.Unlock()
	}

	respondJSON(w, http.StatusOK, APIResponse{Success: true, Data: indicator})
}

func handleTop(w http.ResponseWriter, r *http.Request) {
	store.mu.RLock()
	all := make([]*RiskIndicator, 0, len(store.Indicators))
	for _, ind := range store.Indicators {
		all = append(all, ind)
	}
	store.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].AnalyzedAt.After(all[j].AnalyzedAt)
	})

	if len(all) > 20 {
		all = all[:20]
	}

	respondJSON(w, http.StatusOK, APIResponse{Success: true, Data: all})
}

func handleTrending(w http.ResponseWriter, r *http.Request) {
	store.mu.RLock()
	counts := make(map[string]int)
	for _, ind := range store.Indicators {
		for _, p := range ind.Mentions {
			counts[p]++
		}
	}
	store.mu.RUnlock()

	type productCount struct {
		Product string `json:"product"`
		Count   int    `json:"count"`
	}
	out := make([]productCount, 0, len(counts))
	for p, c := range counts {
		out = append(out, productCount{Product: p, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Product < out[j].Product
	})

	respondJSON(w, http.StatusOK, APIResponse{Success: true, Data: out})
}

func handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	store.mu.RLock()
	indicator, ok := store.Indicators[id]
	store.mu.RUnlock()

	if !ok {
		respondJSON(w, http.StatusNotFound, APIResponse{Success: false, Error: "no indicator for message"})
		return
	}

	respondJSON(w, http.StatusOK, APIResponse{Success: true, Data: indicator})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	store.mu.RLock()
	count := len(store.Indicators)
	store.mu.RUnlock()

	respondJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":       "healthy",
			"indicators":   count,
			"rule_version": ruleVersion,
		},
	})
}

// ============================================================================
// MIDDLEWARE AND HELPERS
// ============================================================================

func authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key != apiKey {
			respondJSON(w, http.StatusUnauthorized, APIResponse{Success: false, Error: "invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// ============================================================================
// MAIN
// ============================================================================

func main() {
	r := mux.NewRouter()

	r.HandleFunc("/health", handleHealth).Methods("GET")

	api := r.PathPrefix("/api/v1/risk").Subrouter()
	api.Use(authMiddleware)
	api.HandleFunc("/detect", handleDetect).Methods("POST")
	api.HandleFunc("/top", handleTop).Methods("GET")
	api.HandleFunc("/trending", handleTrending).Methods("GET")
	api.HandleFunc("/messages/{id}", handleGetMessage).Methods("GET")

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	addr := fmt.Sprintf(":%s", port)
	log.Printf("Risk indicator API listening on %s (rule version %s)", addr, ruleVersion)
	log.Fatal(http.ListenAndServe(addr, r))
}
