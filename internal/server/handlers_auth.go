package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"clinsum/pkg/domain"
	"clinsum/pkg/token"
)

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

type sessionResponse struct {
	User         domain.Identity `json:"user"`
	Token        string          `json:"token"`
	RefreshToken string          `json:"refreshToken"`
}

func sessionOf(ident domain.Identity, pair token.Pair) sessionResponse {
	return sessionResponse{User: ident, Token: pair.Access, RefreshToken: pair.Refresh}
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.signupLimiter, "too many signup attempts") {
		s.audit(r, "auth.signup", "rate_limited")
		return
	}
	var req signupRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "auth.signup", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ident, pair, err := s.app.SignUp(req.Name, req.Email, req.Password)
	if err != nil {
		s.audit(r, "auth.signup", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.signup", "success", "user_id", ident.ID)
	s.setSessionCookies(w, pair)
	writeJSON(w, http.StatusCreated, sessionOf(ident, pair))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "auth.login", "rate_limited")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.audit(r, "auth.login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ident, pair, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		s.audit(r, "auth.login", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.login", "success", "user_id", ident.ID)
	s.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, sessionOf(ident, pair))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.refreshLimiter, "too many refresh attempts") {
		s.audit(r, "auth.refresh", "rate_limited")
		return
	}
	var req refreshRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.audit(r, "auth.refresh", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	refresh := refreshTokenFrom(r, req.RefreshToken)
	if refresh == "" {
		s.audit(r, "auth.refresh", "fail", "reason", "missing_refresh_token")
		writeError(w, http.StatusUnauthorized, "refresh token is required")
		return
	}
	ident, pair, err := s.app.Refresh(refresh)
	if err != nil {
		s.audit(r, "auth.refresh", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.refresh", "success", "user_id", ident.ID)
	s.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, sessionOf(ident, pair))
}

// handleLogout revokes whatever session material the request carries and
// clears the cookies. It never fails: logging out twice is fine.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req refreshRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.app.Logout(accessTokenFrom(r), refreshTokenFrom(r, req.RefreshToken))
	s.audit(r, "auth.logout", "success")
	s.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	ident, ok := s.authorize(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]domain.Identity{"user": ident})
}

// authorize resolves the caller's identity from the access token, if any.
func (s *Server) authorize(r *http.Request) (domain.Identity, bool) {
	tok := accessTokenFrom(r)
	if tok == "" {
		s.audit(r, "token.verify", "fail", "reason", "missing_token")
		return domain.Identity{}, false
	}
	ident, err := s.app.Identify(tok)
	if err != nil {
		s.audit(r, "token.verify", "fail", "reason", "invalid_or_revoked")
		return domain.Identity{}, false
	}
	return ident, true
}
