package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIKeyAuth(t *testing.T) {
	var sawKey string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawKey = GetAPIKey(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		configured string
		header     string
		method     string
		wantStatus int
		wantKey    string
	}{
		{
			name:       "valid bearer token",
			configured: "secret-key",
			header:     "Bearer secret-key",
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
			wantKey:    "secret-key",
		},
		{
			name:       "wrong token",
			configured: "secret-key",
			header:     "Bearer wrong",
			method:     http.MethodGet,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing header",
			configured: "secret-key",
			method:     http.MethodGet,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed header",
			configured: "secret-key",
			header:     "secret-key",
			method:     http.MethodGet,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "empty configured key disables auth",
			configured: "",
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
		},
		{
			name:       "preflight skips auth",
			configured: "secret-key",
			method:     http.MethodOptions,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sawKey = ""
			handler := APIKeyAuth(tt.configured)(next)

			req := httptest.NewRequest(tt.method, "/api/v1/risk/top", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantKey != "" {
				assert.Equal(t, tt.wantKey, sawKey)
			}
		})
	}
}
