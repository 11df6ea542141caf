// Package token issues and verifies the access/refresh session token pair.
package token

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"clinsum/pkg/domain"
)

// Kind selects the verification context of a token. A token signed for one
// kind must never verify under the other: each kind carries its own audience
// claim and verification demands an exact match.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const (
	defaultIssuer   = "clinsum-auth"
	audienceAccess  = "clinsum-access"
	audienceRefresh = "clinsum-refresh"
)

var defaultLeeway = 30 * time.Second

// ErrInvalidToken is the single failure value for every verification problem:
// malformed token, expired token, wrong-kind token, bad signature, revoked
// token. Callers never learn which, to avoid oracle attacks.
var ErrInvalidToken = errors.New("invalid token")

// Pair is one issued access/refresh token set.
type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Revoker tracks invalidated token IDs until natural expiry.
type Revoker interface {
	Revoke(jti string, ttl time.Duration) error
	IsRevoked(jti string) (bool, error)
}

// Options configures claim validation behavior.
type Options struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

// Service signs and verifies session tokens with an HMAC secret.
type Service struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
	revoker    Revoker
}

type sessionClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// NewService builds a token service. The revoker may be nil, in which case
// tokens only expire naturally.
func NewService(secret string, revoker Revoker, opts Options) (*Service, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	opts = normalizeOptions(opts)
	return &Service{
		secret:     []byte(secret),
		issuer:     opts.Issuer,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		leeway:     opts.Leeway,
		revoker:    revoker,
	}, nil
}

// Issue mints a fresh access/refresh pair for the identity payload.
func (s *Service) Issue(identity domain.Identity) (Pair, error) {
	access, err := s.sign(identity, KindAccess)
	if err != nil {
		return Pair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.sign(identity, KindRefresh)
	if err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

// Verify validates a token under the given kind's context and returns the
// identity payload it carries. All failures are ErrInvalidToken.
func (s *Service) Verify(token string, kind Kind) (domain.Identity, error) {
	claims, err := s.parseAndVerify(token, kind)
	if err != nil {
		return domain.Identity{}, ErrInvalidToken
	}
	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(claims.ID)
		if err != nil || revoked {
			return domain.Identity{}, ErrInvalidToken
		}
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return domain.Identity{}, ErrInvalidToken
	}
	return domain.Identity{
		ID:    claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
	}, nil
}

// Revoke invalidates a single token until it would have expired. Tokens that
// fail verification are ignored: revoking them is a no-op.
func (s *Service) Revoke(token string, kind Kind) error {
	if s.revoker == nil {
		return nil
	}
	claims, err := s.parseAndVerify(token, kind)
	if err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return s.revoker.Revoke(claims.ID, ttl)
}

// TTL reports the configured lifetime for a token kind.
func (s *Service) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return s.refreshTTL
	}
	return s.accessTTL
}

func (s *Service) sign(identity domain.Identity, kind Kind) (string, error) {
	now := time.Now().UTC()
	claims := sessionClaims{
		Email: identity.Email,
		Name:  identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{audienceFor(kind)},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TTL(kind))),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        randomHexID(12),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Service) parseAndVerify(token string, kind Kind) (sessionClaims, error) {
	claims := sessionClaims{}
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, errors.New("empty token")
	}
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(audienceFor(kind)),
		jwt.WithLeeway(s.leeway),
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, parserOptions...)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return claims, err
	}
	if strings.TrimSpace(claims.ID) == "" {
		return claims, errors.New("token jti missing")
	}
	return claims, nil
}

func audienceFor(kind Kind) string {
	if kind == KindRefresh {
		return audienceRefresh
	}
	return audienceAccess
}

func randomHexID(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%x", buf)
}

func normalizeOptions(opts Options) Options {
	opts.Issuer = strings.TrimSpace(opts.Issuer)
	if opts.Issuer == "" {
		opts.Issuer = defaultIssuer
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 7 * 24 * time.Hour
	}
	if opts.Leeway <= 0 {
		opts.Leeway = defaultLeeway
	}
	return opts
}
