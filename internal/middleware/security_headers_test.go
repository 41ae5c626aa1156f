package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func serveWithSecurityHeaders(path string, opts ...SecurityHeadersOption) *httptest.ResponseRecorder {
	h := NewSecurityHeadersMiddleware(opts...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestSecurityHeaders_Defaults(t *testing.T) {
	w := serveWithSecurityHeaders("/")

	tests := []struct {
		header string
		want   string
	}{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "same-origin"},
		{"Content-Security-Policy", contentSecurityPolicy},
		{"Cache-Control", "no-store"},
		{"Strict-Transport-Security", ""},
	}
	for _, tt := range tests {
		if got := w.Header().Get(tt.header); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	w := serveWithSecurityHeaders("/", WithHSTS(365*24*time.Hour))

	if got := w.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("Strict-Transport-Security = %q", got)
	}
}

func TestSecurityHeaders_StaticAssetsCacheable(t *testing.T) {
	w := serveWithSecurityHeaders("/static/style.css")

	if got := w.Header().Get("Cache-Control"); got != "" {
		t.Errorf("Cache-Control = %q, want empty for static assets", got)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("nosniff should still be set")
	}
}
