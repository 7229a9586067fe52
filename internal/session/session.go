// Package session owns the bearer credential: it acquires it by login,
// persists it through a CredentialStore and hands it to every transport call.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/diogo/checkin/internal/api"
	"github.com/diogo/checkin/internal/config"
	apierrors "github.com/diogo/checkin/internal/errors"
)

// Session holds the current credential. The zero value is unauthenticated.
// It satisfies api.Credentials and is read when each request is built, so
// login and logout take effect for all subsequent calls.
type Session struct {
	mu    sync.RWMutex
	token string
}

// Ensure Session implements api.Credentials
var _ api.Credentials = (*Session)(nil)

// Token returns the bearer token, or "" when logged out
func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Authenticated reports whether a credential is present
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

func (s *Session) set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Claims is the unverified content of a JWT credential
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token carries an expiry earlier than now
func (c *Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Manager performs login, registration and logout against the backend and
// keeps the Session and the CredentialStore in sync
type Manager struct {
	client  api.BackendClient
	store   config.CredentialStore
	session *Session
	logger  zerolog.Logger
}

// NewManager creates a Manager with an empty session. Call Restore to pick up
// a persisted credential.
func NewManager(client api.BackendClient, store config.CredentialStore, logger zerolog.Logger) *Manager {
	return &Manager{
		client:  client,
		store:   store,
		session: &Session{},
		logger:  logger.With().Str("component", "session").Logger(),
	}
}

// Session returns the live session passed to transport calls
func (m *Manager) Session() *Session {
	return m.session
}

// Restore loads the persisted token, if any, and marks the session
// authenticated. The token is trusted as read; no request is made.
func (m *Manager) Restore() (bool, error) {
	token, err := m.store.Load()
	if err != nil {
		return false, fmt.Errorf("failed to load credential: %w", err)
	}
	if token == "" {
		return false, nil
	}
	m.session.set(token)
	m.logger.Debug().Msg("restored persisted credential")
	return true, nil
}

// Login exchanges username and password for a token, persists it and marks
// the session authenticated. On failure the previous credential is kept.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return fmt.Errorf("%w: username and password are required", apierrors.ErrInvalidCredentials)
	}

	token, err := m.client.Login(ctx, m.session, username, password)
	if err != nil {
		m.logger.Warn().Err(err).Str("user", username).Msg("login failed")
		return err
	}

	m.session.set(token)
	if err := m.store.Save(token); err != nil {
		// The session stays valid for this process
		m.logger.Error().Err(err).Msg("failed to persist credential")
	}
	m.logger.Info().Str("user", username).Msg("logged in")
	return nil
}

// Register creates an account. It does not start a session.
func (m *Manager) Register(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return fmt.Errorf("%w: username and password are required", apierrors.ErrRegistrationFailed)
	}

	if err := m.client.Register(ctx, m.session, username, password); err != nil {
		m.logger.Warn().Err(err).Str("user", username).Msg("registration failed")
		return err
	}
	m.logger.Info().Str("user", username).Msg("registered")
	return nil
}

// Logout forgets the credential in memory and in storage. It always
// succeeds; storage failures are logged.
func (m *Manager) Logout() {
	m.session.set("")
	if err := m.store.Clear(); err != nil {
		m.logger.Error().Err(err).Msg("failed to clear persisted credential")
		return
	}
	m.logger.Info().Msg("logged out")
}

// Verify checks the credential against a protected endpoint. It is never
// called implicitly.
func (m *Manager) Verify(ctx context.Context) error {
	if !m.session.Authenticated() {
		return apierrors.ErrNotAuthenticated
	}
	if _, err := m.client.Exercises(ctx, m.session); err != nil {
		if apierrors.IsAuthError(err) {
			return fmt.Errorf("%w: %w", apierrors.ErrNotAuthenticated, err)
		}
		return err
	}
	return nil
}

// Claims decodes the JWT payload without verifying its signature
func (m *Manager) Claims() (*Claims, error) {
	token := m.session.Token()
	if token == "" {
		return nil, apierrors.ErrNotAuthenticated
	}
	return ParseClaims(token)
}

// ParseClaims decodes a JWT without verifying it. Tokens that are not JWTs
// are reported as an error; the credential itself stays opaque to the rest of
// the client.
func ParseClaims(token string) (*Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return nil, fmt.Errorf("credential is not a JWT: %w", err)
	}

	claims := &Claims{}
	if sub, ok := mc["sub"]; ok && sub != nil {
		claims.Subject = fmt.Sprint(sub)
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	return claims, nil
}

// IsNotAuthenticated reports whether err means there is no usable session
func IsNotAuthenticated(err error) bool {
	return errors.Is(err, apierrors.ErrNotAuthenticated)
}
