// Package auth keeps the client's bearer-token session and the logout
// contract the finalization path tears down through.
package auth

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/proctoraegis/examclient/internal/config"
	"github.com/proctoraegis/examclient/internal/store"
)

// Common auth errors.
var (
	ErrNoToken      = errors.New("no access token, please login")
	ErrTokenExpired = errors.New("access token expired, please login again")
)

// credentials is the JSON layout persisted in the key-value store.
type credentials struct {
	AccessToken string    `json:"access_token"`
	StudentID   uuid.UUID `json:"student_id"`
}

// Session holds the authenticated student's bearer token. The token is
// only inspected here, never verified; signature verification is the
// server's job, the client just needs identity and a usable-before
// check for the fatal no-token load error.
type Session struct {
	kv  store.KeyValueStore
	log zerolog.Logger

	mu    sync.RWMutex
	creds credentials
}

// NewSession restores any persisted credentials from the store.
func NewSession(kv store.KeyValueStore, log zerolog.Logger) *Session {
	s := &Session{
		kv:  kv,
		log: log.With().Str("component", "auth").Logger(),
	}

	data, err := kv.Get(config.StorageKey.CredentialsKey())
	if err == nil {
		if jsonErr := json.Unmarshal(data, &s.creds); jsonErr != nil {
			s.log.Warn().Err(jsonErr).Msg("Stored credentials corrupt, ignoring")
			s.creds = credentials{}
		}
	}

	return s
}

// SetCredentials stores a fresh token after login.
func (s *Session) SetCredentials(token string, studentID uuid.UUID) error {
	s.mu.Lock()
	s.creds = credentials{AccessToken: token, StudentID: studentID}
	data, err := json.Marshal(s.creds)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.kv.Set(config.StorageKey.CredentialsKey(), data)
}

// AccessToken implements api.TokenSource.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.AccessToken
}

// StudentID returns the authenticated student id, or uuid.Nil.
func (s *Session) StudentID() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.StudentID
}

// Validate reports whether a token is present and not past its exp
// claim at the given instant. A token with no parseable exp is treated
// as usable; the server is the authority either way.
func (s *Session) Validate(now time.Time) error {
	token := s.AccessToken()
	if token == "" {
		return ErrNoToken
	}

	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt != nil && now.After(claims.ExpiresAt.Time) {
		return ErrTokenExpired
	}
	return nil
}

// Logout invalidates the in-memory token and clears the persisted
// credentials. Idempotent, and safe to call after the store entry was
// already cleared by finalization.
func (s *Session) Logout() {
	s.mu.Lock()
	s.creds = credentials{}
	s.mu.Unlock()

	if err := s.kv.Remove(config.StorageKey.CredentialsKey()); err != nil {
		s.log.Warn().Err(err).Msg("Credential cleanup failed")
	}
	s.log.Info().Msg("Logged out")
}
