package server

import (
	"net/http"
	"strings"

	"clinsum/pkg/token"
)

const (
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
)

// setSessionCookies installs the token pair as httpOnly cookies. Cookie
// lifetimes follow the token TTLs so an expired cookie never carries a
// live token.
func (s *Server) setSessionCookies(w http.ResponseWriter, pair token.Pair) {
	tokens := s.app.Tokens()
	http.SetCookie(w, s.sessionCookie(accessCookieName, pair.Access, int(tokens.TTL(token.KindAccess).Seconds())))
	http.SetCookie(w, s.sessionCookie(refreshCookieName, pair.Refresh, int(tokens.TTL(token.KindRefresh).Seconds())))
}

func (s *Server) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, s.sessionCookie(accessCookieName, "", -1))
	http.SetCookie(w, s.sessionCookie(refreshCookieName, "", -1))
}

func (s *Server) sessionCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.cookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// accessTokenFrom prefers an Authorization bearer token over the session
// cookie so API clients without cookie jars can authenticate.
func accessTokenFrom(r *http.Request) string {
	if tok := bearerToken(r); tok != "" {
		return tok
	}
	if c, err := r.Cookie(accessCookieName); err == nil {
		return c.Value
	}
	return ""
}

func refreshTokenFrom(r *http.Request, bodyToken string) string {
	if tok := strings.TrimSpace(bodyToken); tok != "" {
		return tok
	}
	if c, err := r.Cookie(refreshCookieName); err == nil {
		return c.Value
	}
	return ""
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}
