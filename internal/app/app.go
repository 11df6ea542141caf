// Package app implements the clinical report workflows: account
// management, report intake for each source type, and summarization.
// HTTP concerns stay in internal/server; app methods speak in domain
// types and sentinel errors.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"clinsum/pkg/auth"
	"clinsum/pkg/domain"
	"clinsum/pkg/ocr"
	"clinsum/pkg/storage"
	"clinsum/pkg/store"
	"clinsum/pkg/token"
)

const defaultMaxTextChars = 20000

// Summarizer produces a structured clinical summary for a report body.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Config carries the collaborators an App needs. All fields are
// required except MaxTextChars, which defaults to 20000.
type Config struct {
	Store      store.Store
	Tokens     *token.Service
	Objects    storage.ObjectStore
	OCR        ocr.Engine
	Summarizer Summarizer

	// MaxTextChars bounds stored report text regardless of source.
	MaxTextChars int
}

// App coordinates the domain workflows on top of its collaborators.
type App struct {
	store        store.Store
	tokens       *token.Service
	objects      storage.ObjectStore
	ocr          ocr.Engine
	summarizer   Summarizer
	maxTextChars int
}

func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("app: store is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("app: token service is required")
	}
	if cfg.Objects == nil {
		return nil, fmt.Errorf("app: object store is required")
	}
	if cfg.OCR == nil {
		return nil, fmt.Errorf("app: ocr engine is required")
	}
	if cfg.Summarizer == nil {
		return nil, fmt.Errorf("app: summarizer is required")
	}
	maxChars := cfg.MaxTextChars
	if maxChars <= 0 {
		maxChars = defaultMaxTextChars
	}
	return &App{
		store:        cfg.Store,
		tokens:       cfg.Tokens,
		objects:      cfg.Objects,
		ocr:          cfg.OCR,
		summarizer:   cfg.Summarizer,
		maxTextChars: maxChars,
	}, nil
}

// Tokens exposes the token service for transport-level verification.
func (a *App) Tokens() *token.Service { return a.tokens }

// SignUp registers a new account and issues a token pair for it.
func (a *App) SignUp(name, email, password string) (domain.Identity, token.Pair, error) {
	name = strings.TrimSpace(name)
	email = auth.NormalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return domain.Identity{}, token.Pair{}, fmt.Errorf("%w: name, email and password are required", ErrInvalidInput)
	}
	if !auth.ValidEmail(email) {
		return domain.Identity{}, token.Pair{}, fmt.Errorf("%w: malformed email address", ErrInvalidInput)
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.Identity{}, token.Pair{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.Identity{}, token.Pair{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.Identity{}, token.Pair{}, ErrEmailAlreadyExists
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.Identity{}, token.Pair{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	}
	if err := a.store.SaveUser(user); err != nil {
		// A signup racing this one past the existence check loses at
		// the unique index; report it as the same conflict.
		if errors.Is(err, store.ErrDuplicateEmail) {
			return domain.Identity{}, token.Pair{}, ErrEmailAlreadyExists
		}
		return domain.Identity{}, token.Pair{}, fmt.Errorf("save user: %w", err)
	}
	ident := domain.IdentityOf(user)
	pair, err := a.tokens.Issue(ident)
	if err != nil {
		return domain.Identity{}, token.Pair{}, fmt.Errorf("issue tokens: %w", err)
	}
	return ident, pair, nil
}

// Login verifies the credentials and issues a fresh token pair.
func (a *App) Login(email, password string) (domain.Identity, token.Pair, error) {
	email = auth.NormalizeEmail(email)
	if email == "" || password == "" {
		return domain.Identity{}, token.Pair{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	user, found, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.Identity{}, token.Pair{}, fmt.Errorf("load user: %w", err)
	}
	if !found || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.Identity{}, token.Pair{}, ErrInvalidCredentials
	}
	ident := domain.IdentityOf(user)
	pair, err := a.tokens.Issue(ident)
	if err != nil {
		return domain.Identity{}, token.Pair{}, fmt.Errorf("issue tokens: %w", err)
	}
	return ident, pair, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a
// new pair is issued. A revoked or expired token yields ErrInvalidToken.
func (a *App) Refresh(refreshToken string) (domain.Identity, token.Pair, error) {
	ident, err := a.tokens.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		return domain.Identity{}, token.Pair{}, ErrInvalidToken
	}
	// The presented token is burned before the new pair exists, so a
	// replayed token can never mint a second pair.
	if err := a.tokens.Revoke(refreshToken, token.KindRefresh); err != nil {
		return domain.Identity{}, token.Pair{}, fmt.Errorf("revoke refresh token: %w", err)
	}
	pair, err := a.tokens.Issue(ident)
	if err != nil {
		return domain.Identity{}, token.Pair{}, fmt.Errorf("issue tokens: %w", err)
	}
	return ident, pair, nil
}

// Identify resolves an access token to the identity it carries.
func (a *App) Identify(accessToken string) (domain.Identity, error) {
	ident, err := a.tokens.Verify(accessToken, token.KindAccess)
	if err != nil {
		return domain.Identity{}, ErrInvalidToken
	}
	return ident, nil
}

// Logout revokes whichever of the two tokens are presented. Missing or
// already-invalid tokens are ignored: logout always succeeds.
func (a *App) Logout(accessToken, refreshToken string) {
	if accessToken != "" {
		_ = a.tokens.Revoke(accessToken, token.KindAccess)
	}
	if refreshToken != "" {
		_ = a.tokens.Revoke(refreshToken, token.KindRefresh)
	}
}
