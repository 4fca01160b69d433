// Package session holds the console's authentication state: a bearer token
// and the resolved user, mirrored to durable storage on every transition.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dukerupert/postdeck/internal/model"
)

// Persisted keys.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Event describes a state transition.
type Event struct {
	State  State
	User   *model.User
	Reason string
}

// Persister is the durable key-value storage behind the session.
type Persister interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	SetSecret(key, value string) error
	Delete(keys ...string) error
}

// UserFetcher resolves the user that owns the current token.
type UserFetcher interface {
	Me(ctx context.Context) (*model.User, error)
}

var ErrEmptyToken = errors.New("session: empty token")

// Store is the session state machine. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	persist   Persister
	token     string
	user      *model.User
	listeners []func(Event)
	now       func() time.Time
	logger    *slog.Logger
}

func New(persist Persister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		persist: persist,
		now:     time.Now,
		logger:  logger,
	}
}

// OnChange registers fn to be called after every state transition.
func (s *Store) OnChange(fn func(Event)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Load reads the persisted token and user. A user without a token is
// discarded, as is an unreadable user record.
func (s *Store) Load() error {
	token, hasToken, err := s.persist.Get(KeyToken)
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	raw, hasUser, err := s.persist.Get(KeyUser)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	var user *model.User
	if hasUser {
		var u model.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			s.logger.Warn("discarding unreadable persisted user", "error", err)
		} else {
			user = &u
		}
	}

	if !hasToken || token == "" {
		if hasUser {
			if err := s.persist.Delete(KeyUser); err != nil {
				return fmt.Errorf("drop orphaned user: %w", err)
			}
		}
		token, user = "", nil
	}

	s.mu.Lock()
	s.token = token
	s.user = user
	s.mu.Unlock()
	return nil
}

// Login transitions to Authenticated and persists token and user.
func (s *Store) Login(token string, user *model.User) error {
	if token == "" {
		return ErrEmptyToken
	}
	if err := s.persist.SetSecret(KeyToken, token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	if err := s.writeUser(user); err != nil {
		return err
	}

	s.mu.Lock()
	s.token = token
	s.user = cloneUser(user)
	s.mu.Unlock()

	s.notify(Event{State: Authenticated, User: cloneUser(user), Reason: "login"})
	return nil
}

// SetUser replaces the resolved user of an authenticated session.
func (s *Store) SetUser(user *model.User) error {
	s.mu.RLock()
	hasToken := s.token != ""
	s.mu.RUnlock()
	if !hasToken {
		return errors.New("session: cannot set user without a token")
	}
	if err := s.writeUser(user); err != nil {
		return err
	}
	s.mu.Lock()
	s.user = cloneUser(user)
	s.mu.Unlock()
	return nil
}

func (s *Store) writeUser(user *model.User) error {
	if user == nil {
		if err := s.persist.Delete(KeyUser); err != nil {
			return fmt.Errorf("clear user: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	if err := s.persist.Set(KeyUser, string(data)); err != nil {
		return fmt.Errorf("persist user: %w", err)
	}
	return nil
}

// Logout transitions to Anonymous and purges the persisted entries. The
// in-memory state is cleared even if purging fails.
func (s *Store) Logout(reason string) error {
	s.mu.Lock()
	wasAuthenticated := s.token != ""
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	err := s.persist.Delete(KeyToken, KeyUser)

	if wasAuthenticated {
		s.notify(Event{State: Anonymous, Reason: reason})
	}
	if err != nil {
		return fmt.Errorf("purge session: %w", err)
	}
	return nil
}

// Restore re-validates a loaded token. An expired JWT is dropped without a
// network call; otherwise the user is fetched and any failure logs out.
func (s *Store) Restore(ctx context.Context, fetcher UserFetcher) error {
	token := s.Token()
	if token == "" {
		return nil
	}

	if exp, ok := tokenExpiry(token); ok && !exp.After(s.now()) {
		s.logger.Info("persisted token expired", "expired_at", exp)
		return s.Logout("token expired")
	}

	user, err := fetcher.Me(ctx)
	if err != nil {
		s.logger.Warn("session restore failed", "error", err)
		if lerr := s.Logout("restore failed"); lerr != nil {
			s.logger.Error("logout after failed restore", "error", lerr)
		}
		return fmt.Errorf("restore session: %w", err)
	}
	// The fetch may have raced a logout triggered by a 401.
	if s.Token() != token {
		return nil
	}
	return s.SetUser(user)
}

// tokenExpiry reads the exp claim of a JWT without verifying its signature.
// Opaque tokens report ok=false.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the resolved user, or nil.
func (s *Store) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneUser(s.user)
}

func (s *Store) State() State {
	if s.Authenticated() {
		return Authenticated
	}
	return Anonymous
}

func (s *Store) Authenticated() bool {
	return s.Token() != ""
}

func (s *Store) notify(ev Event) {
	s.mu.RLock()
	listeners := make([]func(Event), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	s.logger.Info("session transition", "state", ev.State.String(), "reason", ev.Reason)
	for _, fn := range listeners {
		fn(ev)
	}
}

func cloneUser(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
