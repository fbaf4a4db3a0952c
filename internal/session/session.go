// Package session holds the signed-in user's credential. The API client
// reads it per request; nothing else in the process keeps a copy.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"feedsync/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSession is returned by stores that hold no persisted session.
var ErrNoSession = errors.New("no persisted session")

// State is the persisted form of a session.
type State struct {
	Token     string      `yaml:"token" json:"token"`
	User      models.User `yaml:"user" json:"user"`
	ExpiresAt time.Time   `yaml:"expires_at,omitempty" json:"expires_at,omitempty"`
}

// Store persists session state between runs.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, st State) error
	Clear(ctx context.Context) error
}

// Session is the process-wide credential holder. It is safe for concurrent use.
type Session struct {
	mu    sync.RWMutex
	state State
	store Store
	now   func() time.Time
}

// New creates an empty session backed by store. A nil store keeps the
// session in memory only.
func New(store Store) *Session {
	return &Session{store: store, now: time.Now}
}

// Restore loads the persisted session, if any. A missing session is not an error.
func (s *Session) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	st, err := s.store.Load(ctx)
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	return nil
}

// Establish stores the credential returned by login and persists it.
func (s *Session) Establish(ctx context.Context, auth models.AuthResponse) error {
	claims, err := InspectToken(auth.Token)
	if err != nil {
		return err
	}
	st := State{Token: auth.Token, User: auth.User, ExpiresAt: claims.ExpiresAt}
	if st.User.ID == "" {
		st.User.ID = claims.Subject
	}

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Save(ctx, st); err != nil {
			return fmt.Errorf("persist session: %w", err)
		}
	}
	return nil
}

// Clear discards the credential in memory and in the store. Requests
// already in flight keep the token they read.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.state = State{}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Clear(ctx); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
	}
	return nil
}

// Token returns the bearer credential, or "" when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Token
}

// UserID returns the signed-in user's id, or "".
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.User.ID
}

// User returns the signed-in user's profile.
func (s *Session) User() models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.User
}

// Valid reports whether a credential is present and not known to be expired.
func (s *Session) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Token == "" {
		return false
	}
	return s.state.ExpiresAt.IsZero() || s.now().Before(s.state.ExpiresAt)
}

// Claims is the subset of the token claims the client relies on.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// InspectToken reads the subject and expiry of a JWT without verifying its
// signature; the server is the only party holding the key.
func InspectToken(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, models.NewValidationError("Token is empty")
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Claims{}, models.NewValidationError(fmt.Sprintf("Malformed token: %v", err))
	}

	var out Claims
	if sub, err := parsed.Claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}
