// Package server exposes the HTTP API: auth endpoints issuing cookie
// sessions, report intake and listing, and summarization.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"clinsum/internal/app"
	"clinsum/internal/ratelimit"
	"clinsum/internal/util"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	RedisAddr     string
	RedisPassword string

	AllowedOrigin string
	CookieDomain  string
	CookieSecure  bool

	MaxUploadBytes int64

	SignupRateLimitPerMinute    int
	LoginRateLimitPerMinute     int
	RefreshRateLimitPerMinute   int
	SummarizeRateLimitPerMinute int

	TrustedProxies *util.TrustedProxies
}

// Server exposes HTTP endpoints for the report summarizer backend.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	allowedOrigin  string
	cookieDomain   string
	cookieSecure   bool
	maxUploadBytes int64
	trustedProxies *util.TrustedProxies

	signupLimiter    *ratelimit.FixedWindowLimiter
	loginLimiter     *ratelimit.FixedWindowLimiter
	refreshLimiter   *ratelimit.FixedWindowLimiter
	summarizeLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("server: app is required")
	}
	signupLimit := cfg.SignupRateLimitPerMinute
	if signupLimit <= 0 {
		signupLimit = 5
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	refreshLimit := cfg.RefreshRateLimitPerMinute
	if refreshLimit <= 0 {
		refreshLimit = 20
	}
	summarizeLimit := cfg.SummarizeRateLimitPerMinute
	if summarizeLimit <= 0 {
		summarizeLimit = 10
	}
	rateWindow := time.Minute
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		prefix := "clinsum:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, rateWindow)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	signupLimiter, err := newLimiter("signup", signupLimit)
	if err != nil {
		return nil, err
	}
	loginLimiter, err := newLimiter("login", loginLimit)
	if err != nil {
		return nil, err
	}
	refreshLimiter, err := newLimiter("refresh", refreshLimit)
	if err != nil {
		return nil, err
	}
	summarizeLimiter, err := newLimiter("summarize", summarizeLimit)
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:              cfg.App,
		mux:              http.NewServeMux(),
		allowedOrigin:    cfg.AllowedOrigin,
		cookieDomain:     cfg.CookieDomain,
		cookieSecure:     cfg.CookieSecure,
		maxUploadBytes:   normalizeMaxBytes(cfg.MaxUploadBytes),
		trustedProxies:   cfg.TrustedProxies,
		signupLimiter:    signupLimiter,
		loginLimiter:     loginLimiter,
		refreshLimiter:   refreshLimiter,
		summarizeLimiter: summarizeLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	h := util.WithSecurityHeaders(util.WithCORS(s.allowedOrigin, s.mux))
	return util.WithRequestID(util.WithRequestLog("clinsum", h))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.HandleFunc("/auth/refresh", s.handleRefresh)
	s.mux.HandleFunc("/auth/logout", s.handleLogout)
	s.mux.HandleFunc("/auth/me", s.handleMe)

	// reports
	s.mux.HandleFunc("/reports", s.handleReports)
	s.mux.HandleFunc("/reports/pdf", s.handlePDFReport)
	s.mux.HandleFunc("/reports/", s.handleReportByID)
	s.mux.HandleFunc("/summaries/", s.handleSummarize)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps domain errors onto statuses. Collaborator failures
// surface as a generic 500; the cause goes to the log only.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, app.ErrTextTooLong),
		errors.Is(err, app.ErrUnsupportedSourceType),
		errors.Is(err, app.ErrNoContent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials),
		errors.Is(err, app.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrEmailAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrReportNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrExtractionFailed):
		logRequestError(r, err)
		writeError(w, http.StatusInternalServerError, app.ErrExtractionFailed.Error())
	case errors.Is(err, app.ErrSummarizationFailed):
		logRequestError(r, err)
		writeError(w, http.StatusInternalServerError, app.ErrSummarizationFailed.Error())
	default:
		logRequestError(r, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func logRequestError(r *http.Request, err error) {
	util.LoggerFromContext(r.Context()).Error("request failed",
		"error", err,
		"path", r.URL.Path,
		"method", r.Method,
	)
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 20 * 1024 * 1024
	}
	return value
}
