package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/postdeck/internal/secret"
)

// ErrSealed is returned when a sealed value is read without a usable passphrase.
var ErrSealed = errors.New("value is sealed and no passphrase is configured")

// StateStore is the durable key-value mirror of client state.
type StateStore struct {
	db     *sql.DB
	sealer *secret.Sealer
}

func NewStateStore(db *sql.DB, sealer *secret.Sealer) *StateStore {
	return &StateStore{db: db, sealer: sealer}
}

// Get returns the value for key. ok is false when the key is absent.
func (s *StateStore) Get(key string) (value string, ok bool, err error) {
	var sealed bool
	err = s.db.QueryRow(`SELECT value, sealed FROM client_state WHERE key = ?`, key).Scan(&value, &sealed)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get state %q: %w", key, err)
	}
	if !sealed {
		return value, true, nil
	}
	if !s.sealer.Enabled() {
		return "", false, fmt.Errorf("get state %q: %w", key, ErrSealed)
	}
	plain, err := s.sealer.Open(value)
	if err != nil {
		return "", false, fmt.Errorf("open state %q: %w", key, err)
	}
	return plain, true, nil
}

// Set stores value under key in plain text.
func (s *StateStore) Set(key, value string) error {
	return s.put(key, value, false)
}

// SetSecret stores value under key, sealed when a passphrase is configured.
func (s *StateStore) SetSecret(key, value string) error {
	if !s.sealer.Enabled() {
		return s.put(key, value, false)
	}
	sealed, err := s.sealer.Seal(value)
	if err != nil {
		return fmt.Errorf("seal state %q: %w", key, err)
	}
	return s.put(key, sealed, true)
}

func (s *StateStore) put(key, value string, sealed bool) error {
	_, err := s.db.Exec(
		`INSERT INTO client_state (key, value, sealed, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, sealed = excluded.sealed, updated_at = excluded.updated_at`,
		key, value, sealed, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set state %q: %w", key, err)
	}
	return nil
}

// Delete removes the given keys in a single transaction.
func (s *StateStore) Delete(keys ...string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete state: %w", err)
	}
	defer tx.Rollback()

	for _, key := range keys {
		if _, err := tx.Exec(`DELETE FROM client_state WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete state %q: %w", key, err)
		}
	}
	return tx.Commit()
}
