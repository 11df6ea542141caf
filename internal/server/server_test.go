package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"clinsum/internal/app"
	"clinsum/pkg/storage"
	"clinsum/pkg/store"
	"clinsum/pkg/token"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubOCR struct {
	text string
	err  error
}

func (s *stubOCR) Extract(context.Context, []byte) (string, error) {
	return s.text, s.err
}

type stubSummarizer struct {
	out  string
	err  error
	hook func(context.Context) error
}

func (s *stubSummarizer) Summarize(ctx context.Context, _ string) (string, error) {
	if s.hook != nil {
		if err := s.hook(ctx); err != nil {
			return "", err
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.err != nil {
		return "", s.err
	}
	return s.out, nil
}

type testServer struct {
	srv        *httptest.Server
	ocr        *stubOCR
	summarizer *stubSummarizer
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	tokens, err := token.NewService(testSecret, store.NewMemoryTokenRevoker(), token.Options{
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	engine := &stubOCR{text: "scanned text"}
	summarizer := &stubSummarizer{out: "**Findings**\nstub summary"}
	application, err := app.New(app.Config{
		Store:      store.NewMemoryStore(),
		Tokens:     tokens,
		Objects:    storage.NewMemoryObjectStore(),
		OCR:        engine,
		Summarizer: summarizer,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	redis := miniredis.RunT(t)
	cfg := Config{
		App:       application,
		RedisAddr: redis.Addr(),
		// High enough that only the dedicated rate limit test trips them.
		SignupRateLimitPerMinute:    1000,
		LoginRateLimitPerMinute:     1000,
		RefreshRateLimitPerMinute:   1000,
		SummarizeRateLimitPerMinute: 1000,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, ocr: engine, summarizer: summarizer}
}

func (ts *testServer) postJSON(t *testing.T, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	return resp
}

func (ts *testServer) get(t *testing.T, path string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

type sessionBody struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"user"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

func (ts *testServer) signup(t *testing.T, name, email, password string) (sessionBody, []*http.Cookie) {
	t.Helper()
	resp := ts.postJSON(t, "/auth/signup", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d", resp.StatusCode)
	}
	cookies := resp.Cookies()
	var body sessionBody
	decodeBody(t, resp, &body)
	return body, cookies
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := ts.get(t, "/healthz", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestSignupSetsSessionCookies(t *testing.T) {
	ts := newTestServer(t, nil)
	body, cookies := ts.signup(t, "Ada", "ada@example.com", "long enough pw")

	if body.Token == "" || body.RefreshToken == "" {
		t.Fatal("expected tokens in response body")
	}
	if body.User.Email != "ada@example.com" {
		t.Fatalf("user = %+v", body.User)
	}

	var access, refresh *http.Cookie
	for _, c := range cookies {
		switch c.Name {
		case "access_token":
			access = c
		case "refresh_token":
			refresh = c
		}
	}
	if access == nil || refresh == nil {
		t.Fatalf("missing session cookies: %v", cookies)
	}
	for _, c := range []*http.Cookie{access, refresh} {
		if !c.HttpOnly {
			t.Errorf("cookie %s must be httpOnly", c.Name)
		}
		if c.Value == "" {
			t.Errorf("cookie %s is empty", c.Name)
		}
	}
}

func TestMeWithBearerAndCookie(t *testing.T) {
	ts := newTestServer(t, nil)
	body, cookies := ts.signup(t, "Ada", "ada@example.com", "long enough pw")

	resp := ts.get(t, "/auth/me", bearer(body.Token))
	var viaBearer sessionBody
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bearer me status = %d", resp.StatusCode)
	}
	decodeBody(t, resp, &viaBearer)
	if viaBearer.User.ID != body.User.ID {
		t.Fatalf("bearer me returned %+v", viaBearer.User)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/auth/me", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	cookieResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("cookie me: %v", err)
	}
	defer cookieResp.Body.Close()
	if cookieResp.StatusCode != http.StatusOK {
		t.Fatalf("cookie me status = %d", cookieResp.StatusCode)
	}
}

func TestMeWithoutSession(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := ts.get(t, "/auth/me", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.signup(t, "Ada", "ada@example.com", "long enough pw")
	resp := ts.postJSON(t, "/auth/signup", map[string]string{
		"name": "Other", "email": "ada@example.com", "password": "another long pw",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.signup(t, "Ada", "ada@example.com", "long enough pw")
	resp := ts.postJSON(t, "/auth/login", map[string]string{
		"email": "ada@example.com", "password": "wrong password!",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestRefreshRotatesSession(t *testing.T) {
	ts := newTestServer(t, nil)
	body, _ := ts.signup(t, "Ada", "ada@example.com", "long enough pw")

	resp := ts.postJSON(t, "/auth/refresh", map[string]string{"refreshToken": body.RefreshToken}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}
	var next sessionBody
	decodeBody(t, resp, &next)
	if next.RefreshToken == "" || next.RefreshToken == body.RefreshToken {
		t.Fatal("refresh must rotate the refresh token")
	}

	replay := ts.postJSON(t, "/auth/refresh", map[string]string{"refreshToken": body.RefreshToken}, nil)
	defer replay.Body.Close()
	if replay.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replayed refresh status = %d, want 401", replay.StatusCode)
	}
}

func TestRefreshFromCookie(t *testing.T) {
	ts := newTestServer(t, nil)
	_, cookies := ts.signup(t, "Ada", "ada@example.com", "long enough pw")

	req, _ := http.NewRequest(http.MethodPost, ts.srv.URL+"/auth/refresh", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cookie refresh status = %d", resp.StatusCode)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	ts := newTestServer(t, nil)
	body, _ := ts.signup(t, "Ada", "ada@example.com", "long enough pw")

	resp := ts.postJSON(t, "/auth/logout", map[string]string{"refreshToken": body.RefreshToken}, bearer(body.Token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}
	cleared := false
	for _, c := range resp.Cookies() {
		if c.Name == "access_token" && c.MaxAge < 0 {
			cleared = true
		}
	}
	resp.Body.Close()
	if !cleared {
		t.Fatal("logout must clear the access cookie")
	}

	me := ts.get(t, "/auth/me", bearer(body.Token))
	defer me.Body.Close()
	if me.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me after logout = %d, want 401", me.StatusCode)
	}
}

// Session restoration: a client holding only cookies recovers a session by
// refreshing when /auth/me rejects its access token.
func TestSessionRestorationFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	body, _ := ts.signup(t, "Ada", "ada@example.com", "long enough pw")

	stale := ts.get(t, "/auth/me", bearer("stale-or-garbage"))
	stale.Body.Close()
	if stale.StatusCode != http.StatusUnauthorized {
		t.Fatalf("stale me = %d, want 401", stale.StatusCode)
	}

	refreshed := ts.postJSON(t, "/auth/refresh", map[string]string{"refreshToken": body.RefreshToken}, nil)
	if refreshed.StatusCode != http.StatusOK {
		t.Fatalf("refresh = %d", refreshed.StatusCode)
	}
	var next sessionBody
	decodeBody(t, refreshed, &next)

	retry := ts.get(t, "/auth/me", bearer(next.Token))
	defer retry.Body.Close()
	if retry.StatusCode != http.StatusOK {
		t.Fatalf("retried me = %d, want 200", retry.StatusCode)
	}
}

func TestLoginRateLimit(t *testing.T) {
	ts := newTestServer(t, func(cfg *Config) {
		cfg.LoginRateLimitPerMinute = 1
	})
	body := map[string]string{"email": "a@b.co", "password": "whatever pw"}

	first := ts.postJSON(t, "/auth/login", body, nil)
	first.Body.Close()
	if first.StatusCode == http.StatusTooManyRequests {
		t.Fatal("first request must not be rate limited")
	}
	second := ts.postJSON(t, "/auth/login", body, nil)
	defer second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", second.StatusCode)
	}
	if second.Header.Get("Retry-After") == "" {
		t.Fatal("expected a Retry-After header")
	}
}

func TestServerRequiresRedisRateLimiter(t *testing.T) {
	tokens, err := token.NewService(testSecret, store.NewMemoryTokenRevoker(), token.Options{})
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	application, err := app.New(app.Config{
		Store:      store.NewMemoryStore(),
		Tokens:     tokens,
		Objects:    storage.NewMemoryObjectStore(),
		OCR:        &stubOCR{},
		Summarizer: &stubSummarizer{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if _, err := New(Config{App: application}); err == nil {
		t.Fatal("expected limiter initialization to fail without a redis addr")
	}
}
