package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func securedResponse(t *testing.T, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	h := WithSecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/reports/abc", nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWithSecurityHeaders(t *testing.T) {
	rec := securedResponse(t, nil)

	want := map[string]string{
		"X-Content-Type-Options":       "nosniff",
		"X-Frame-Options":              "DENY",
		"Referrer-Policy":              "no-referrer",
		"Cross-Origin-Resource-Policy": "same-origin",
		"Cache-Control":                "no-store",
	}
	for name, value := range want {
		if got := rec.Header().Get(name); got != value {
			t.Fatalf("%s = %q, want %q", name, got, value)
		}
	}
	if got := rec.Header().Get("Content-Security-Policy"); got == "" {
		t.Fatal("expected a Content-Security-Policy header")
	}
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("no HSTS expected on plain http, got %q", got)
	}
}

func TestWithSecurityHeadersAddsHSTSBehindTLSProxy(t *testing.T) {
	rec := securedResponse(t, func(req *http.Request) {
		req.Header.Set("X-Forwarded-Proto", "HTTPS")
	})
	if got := rec.Header().Get("Strict-Transport-Security"); got == "" {
		t.Fatal("expected HSTS when the proxy terminated TLS")
	}
}
