package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jobrunner/geosight/internal/config"
)

func TestOriginHost(t *testing.T) {
	tests := []struct {
		origin string
		want   string
	}{
		{"https://example.com", "example.com"},
		{"https://example.com:8080", "example.com"},
		{"http://tiles.example.com/path", "tiles.example.com"},
		{"example.com:443", "example.com"},
		{"localhost", "localhost"},
	}

	for _, tt := range tests {
		if got := originHost(tt.origin); got != tt.want {
			t.Errorf("originHost(%q) = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func TestMatchOrigin(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		pattern string
		want    bool
	}{
		{"exact", "https://example.com", "https://example.com", true},
		{"scheme differs", "http://example.com", "https://example.com", false},
		{"any", "https://maps.test", "*", true},
		{"subdomain wildcard", "https://app.example.com", "*.example.com", true},
		{"nested subdomain", "https://a.b.example.com:8443", "*.example.com", true},
		{"apex not matched", "https://example.com", "*.example.com", false},
		{"suffix trick", "https://evilexample.com", "*.example.com", false},
		{"unrelated", "https://evil.com", "https://example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchOrigin(tt.origin, tt.pattern); got != tt.want {
				t.Errorf("matchOrigin(%q, %q) = %v, want %v", tt.origin, tt.pattern, got, tt.want)
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantStatus int
		wantNext   bool
	}{
		{"allowed GET", []string{"https://example.com"}, "https://example.com", http.MethodGet, "https://example.com", http.StatusOK, true},
		{"allowed preflight", []string{"https://example.com"}, "https://example.com", http.MethodOptions, "https://example.com", http.StatusNoContent, false},
		{"wildcard", []string{"*.example.com"}, "https://app.example.com", http.MethodGet, "https://app.example.com", http.StatusOK, true},
		{"not allowed", []string{"https://example.com"}, "https://evil.com", http.MethodGet, "", http.StatusOK, true},
		{"no origin", []string{"https://example.com"}, "", http.MethodGet, "", http.StatusOK, true},
		{"disallowed preflight", []string{"https://example.com"}, "https://evil.com", http.MethodOptions, "", http.StatusNoContent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{config: config.ServerConfig{CORS: config.CORSConfig{AllowedOrigins: tt.allowed}}}

			nextCalled := false
			handler := s.corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				nextCalled = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/v1/report", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if nextCalled != tt.wantNext {
				t.Errorf("next called = %v, want %v", nextCalled, tt.wantNext)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if rr.Header().Get("Vary") != "Origin" {
				t.Errorf("Vary = %q, want Origin", rr.Header().Get("Vary"))
			}
			if tt.wantOrigin != "" && rr.Header().Get("Access-Control-Expose-Headers") != "Retry-After" {
				t.Error("Retry-After should be exposed to allowed origins")
			}
		})
	}
}

func TestCORSConfigEnabled(t *testing.T) {
	if (&config.CORSConfig{}).Enabled() {
		t.Error("empty CORS config should be disabled")
	}
	if !(&config.CORSConfig{AllowedOrigins: []string{"*"}}).Enabled() {
		t.Error("CORS config with origins should be enabled")
	}
}

func TestServerAppliesCORS(t *testing.T) {
	srv := newTestServer(config.ServerConfig{
		Host: "localhost",
		Port: 8080,
		CORS: config.CORSConfig{AllowedOrigins: []string{"https://maps.example.com"}},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/soil/4", nil)
	req.Header.Set("Origin", "https://maps.example.com")
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)

	if rr.Header().Get("Access-Control-Allow-Origin") != "https://maps.example.com" {
		t.Errorf("Allow-Origin = %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}
