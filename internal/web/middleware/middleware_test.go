package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JonMunkholm/stockimport/internal/config"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

// ----------------------------------------------------------------------------
// APIKeyAuth
// ----------------------------------------------------------------------------

func TestAPIKeyAuth(t *testing.T) {
	cfg := &config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1", "k2"}}

	tests := []struct {
		name    string
		cfg     *config.SecurityConfig
		headers map[string]string
		want    int
	}{
		{"disabled", &config.SecurityConfig{}, nil, http.StatusNoContent},
		{"missing key", cfg, nil, http.StatusUnauthorized},
		{"invalid key", cfg, map[string]string{"X-API-Key": "nope"}, http.StatusForbidden},
		{"valid header", cfg, map[string]string{"X-API-Key": "k2"}, http.StatusNoContent},
		{"valid bearer", cfg, map[string]string{"Authorization": "Bearer k1"}, http.StatusNoContent},
		{"basic auth ignored", cfg, map[string]string{"Authorization": "Basic k1"}, http.StatusUnauthorized},
		{"no keys configured", &config.SecurityConfig{RequireAPIKey: true}, map[string]string{"X-API-Key": "k1"}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/imports/types", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			APIKeyAuth(tt.cfg)(okHandler).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// TrustedRealIP
// ----------------------------------------------------------------------------

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		headers map[string]string
		want    string
	}{
		{"no trusted proxies", nil, "203.0.113.9:4000", map[string]string{"X-Real-IP": "1.2.3.4"}, "203.0.113.9:4000"},
		{"untrusted source", []string{"10.0.0.0/8"}, "203.0.113.9:4000", map[string]string{"X-Real-IP": "1.2.3.4"}, "203.0.113.9:4000"},
		{"real ip from proxy", []string{"10.0.0.0/8"}, "10.1.2.3:4000", map[string]string{"X-Real-IP": "1.2.3.4"}, "1.2.3.4"},
		{"forwarded chain", []string{"10.0.0.0/8"}, "10.1.2.3:4000", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.9.9.9"}, "1.2.3.4"},
		{"single address entry", []string{"127.0.0.1"}, "127.0.0.1:4000", map[string]string{"X-Real-IP": "2001:db8::1"}, "2001:db8::1"},
		{"invalid header kept", []string{"10.0.0.0/8"}, "10.1.2.3:4000", map[string]string{"X-Real-IP": "not-an-ip"}, "10.1.2.3:4000"},
		{"invalid cidr skipped", []string{"bogus", "10.0.0.0/8"}, "10.1.2.3:4000", map[string]string{"X-Real-IP": "1.2.3.4"}, "1.2.3.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			var got string
			h := TrustedRealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("RemoteAddr = %q, want %q", got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// RateLimiter
// ----------------------------------------------------------------------------

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(3)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := range 3 {
		if !rl.Allow("1.1.1.1") {
			t.Fatalf("request %d rejected within burst", i+1)
		}
	}
	if rl.Allow("1.1.1.1") {
		t.Error("request over burst allowed")
	}
	if !rl.Allow("2.2.2.2") {
		t.Error("limit leaked across clients")
	}

	now = now.Add(20 * time.Second)
	if !rl.Allow("1.1.1.1") {
		t.Error("token not replenished after 20s")
	}

	now = now.Add(idleVisitor + 2*time.Minute)
	rl.Allow("3.3.3.3")
	if got := rl.Visitors(); got != 1 {
		t.Errorf("Visitors() = %d after idle sweep, want 1", got)
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	h := NewRateLimiter(1).Middleware(okHandler)

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := do(); rec.Code != http.StatusNoContent {
		t.Fatalf("first request status = %d", rec.Code)
	}
	rec := do()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

// ----------------------------------------------------------------------------
// Logger
// ----------------------------------------------------------------------------

func TestLogger_CapturesStatusAndFlushes(t *testing.T) {
	var flushed bool
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.WriteHeader(http.StatusInternalServerError) // ignored
		_, _ = w.Write([]byte("ok"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
			flushed = true
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
	if !flushed || !rec.Flushed {
		t.Error("writer wrapper does not pass Flush through")
	}
}
