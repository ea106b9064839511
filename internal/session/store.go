// Package session owns the lifecycle of the bearer token: loading it at
// startup, persisting it on login and clearing it on logout or when the
// backend rejects it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aquarius1905/care-support/internal/tokenstore"
	"github.com/aquarius1905/care-support/pkg/models"
)

// TokenKey is the storage key of the persisted bearer token
const TokenKey = "auth_token"

const storageTimeout = 5 * time.Second

// ErrEmptyToken is returned by Login when no token is given
var ErrEmptyToken = errors.New("token must not be empty")

// Store is the single source of truth for request authorization
type Store struct {
	storage tokenstore.Store
	log     *slog.Logger

	// writeMu orders storage writes with the in-memory update that follows them
	writeMu sync.Mutex
	// writes counts Login, Logout and Invalidate calls that changed state.
	// Guarded by writeMu.
	writes  uint64
	mu      sync.RWMutex
	token   string

	initOnce sync.Once
	ready    chan struct{}
}

// New creates a session in the loading state
func New(storage tokenstore.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		storage: storage,
		log:     logger.With("component", "session"),
		ready:   make(chan struct{}),
	}
}

// Initialize loads the persisted token. Read failures are logged and treated
// as "no token". Only the first call reads storage; concurrent callers block
// until it finishes and observe the same state.
func (s *Store) Initialize(ctx context.Context) {
	s.initOnce.Do(func() {
		defer close(s.ready)

		s.writeMu.Lock()
		startWrites := s.writes
		s.writeMu.Unlock()

		readCtx, cancel := context.WithTimeout(ctx, storageTimeout)
		defer cancel()

		token, err := s.storage.Get(readCtx, TokenKey)
		switch {
		case errors.Is(err, tokenstore.ErrNotFound):
			s.log.Debug("no persisted token")
			return
		case err != nil:
			s.log.Warn("failed to read persisted token", "error", err)
			return
		case token == "":
			return
		}

		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		// A login, logout or invalidation that finished during the read wins.
		if s.writes != startWrites {
			s.log.Debug("session changed while loading, discarding persisted token")
			return
		}
		s.mu.Lock()
		s.token = token
		s.mu.Unlock()
		s.log.Info("restored persisted session")
	})
	<-s.ready
}

// Ready is closed once Initialize has resolved
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// IsLoading reports whether the initial token load is still in progress
func (s *Store) IsLoading() bool {
	select {
	case <-s.ready:
		return false
	default:
		return true
	}
}

// IsAuthenticated reports whether a token is present
func (s *Store) IsAuthenticated() bool {
	_, ok := s.Token()
	return ok
}

// Token returns the current token by value
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Status returns a snapshot for routing decisions
func (s *Store) Status() models.Status {
	st := models.Status{Loading: s.IsLoading(), State: models.Unauthenticated}
	if s.IsAuthenticated() {
		st.State = models.Authenticated
	}
	return st
}

// Login persists token and then marks the session authenticated. When the
// write fails the in-memory state is left as it was.
func (s *Store) Login(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	writeCtx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	if err := s.storage.Set(writeCtx, TokenKey, token); err != nil {
		s.log.Error("failed to persist token", "error", err)
		return fmt.Errorf("failed to persist token: %w", asStorageError("set", err))
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	s.writes++
	s.log.Info("logged in")
	return nil
}

// Logout removes the persisted token and clears the session. The session is
// unauthenticated afterwards even when the removal fails; that failure is
// still returned so the caller can report it.
func (s *Store) Logout(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	removeCtx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	err := s.storage.Delete(removeCtx, TokenKey)

	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	s.writes++

	if err != nil {
		s.log.Warn("failed to remove persisted token", "error", err)
		return fmt.Errorf("failed to remove persisted token: %w", asStorageError("delete", err))
	}
	s.log.Info("logged out")
	return nil
}

// Invalidate clears the session after the backend refused the token rejected. It is a
// no-op when the session has since moved on to another token.
func (s *Store) Invalidate(ctx context.Context, rejected string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.token == "" || s.token != rejected {
		s.mu.Unlock()
		return nil
	}
	s.token = ""
	s.mu.Unlock()
	s.writes++

	s.log.Warn("session rejected by server, clearing token")

	removeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storageTimeout)
	defer cancel()
	if err := s.storage.Delete(removeCtx, TokenKey); err != nil {
		s.log.Error("failed to remove rejected token", "error", err)
		return fmt.Errorf("failed to remove rejected token: %w", asStorageError("delete", err))
	}
	return nil
}

func asStorageError(op string, err error) error {
	var se *tokenstore.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &tokenstore.StorageError{Op: op, Key: TokenKey, Err: err}
}
