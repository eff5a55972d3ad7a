package models

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"

	"github.com/chainid/console/internal/db"
)

var (
	settingsKey  = []byte("SETTINGS")
	jwtSecretKey = []byte("jwtSecret")
)

// Settings are the administrator-editable console settings, stored as a
// single record.
type Settings struct {
	// LogoURL replaces the console logo when set.
	LogoURL string `json:"logoURL"`
	// DefaultPageSize overrides --page-size for newly opened tables. Nil
	// keeps the command-line value; zero shows all rows.
	DefaultPageSize *int `json:"defaultPageSize,omitempty"`
}

// Validate rejects settings the tables cannot honor.
func (s Settings) Validate() error {
	if s.DefaultPageSize != nil && *s.DefaultPageSize < 0 {
		return fmt.Errorf("default page size must not be negative")
	}
	return nil
}

// PageSize returns the configured default page size, or fallback when unset.
func (s Settings) PageSize(fallback int) int {
	if s.DefaultPageSize == nil {
		return fallback
	}
	return *s.DefaultPageSize
}

// SettingStore keeps the settings record and the JWT signing secret. The
// record is loaded once and served from memory afterwards.
type SettingStore struct {
	db *bolt.DB

	mu     sync.Mutex
	loaded *Settings
}

func NewSettingStore(database *bolt.DB) *SettingStore {
	return &SettingStore{db: database}
}

// Settings returns the stored settings, or the zero value when none were saved.
func (s *SettingStore) Settings() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded != nil {
		return *s.loaded, nil
	}

	var out Settings
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(db.BucketSettings).Get(settingsKey)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &out)
	})
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	s.loaded = &out
	return out, nil
}

// Update validates and replaces the settings record.
func (s *SettingStore) Update(next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(db.BucketSettings).Put(settingsKey, data)
	})
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	s.loaded = &next
	return nil
}

// EnsureJWTSecret returns the JWT signing secret, generating and storing one
// on first run.
func (s *SettingStore) EnsureJWTSecret() (string, error) {
	var secret string
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(db.BucketSettings)
		if v := b.Get(jwtSecretKey); v != nil {
			secret = string(v)
			return nil
		}

		raw, err := GenSecret(secretLength)
		if err != nil {
			return fmt.Errorf("generate secret: %w", err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcryptCost)
		if err != nil {
			return fmt.Errorf("hash secret: %w", err)
		}
		secret = string(hash)
		slog.Info("generated new JWT secret")
		return b.Put(jwtSecretKey, hash)
	})
	if err != nil {
		return "", fmt.Errorf("jwt secret: %w", err)
	}
	return secret, nil
}
