// Package prefs persists the popup settings: whether picking is enabled and
// whether the dark theme is on.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Schema is a plain key-value table.
const Schema = `
CREATE TABLE IF NOT EXISTS prefs (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const (
	keyEnabled  = "enabled"
	keyDarkMode = "darkMode"
)

// Prefs is the stored configuration.
type Prefs struct {
	Enabled  bool `json:"enabled"`
	DarkMode bool `json:"darkMode"`
}

// Defaults apply to keys never written.
func Defaults() Prefs { return Prefs{Enabled: true, DarkMode: false} }

// Store reads and writes Prefs.
type Store struct {
	db *sql.DB
}

// New wraps db. Schema must be applied.
func New(db *sql.DB) *Store { return &Store{db: db} }

// Load returns the stored values over Defaults.
func (s *Store) Load(ctx context.Context) (Prefs, error) {
	p := Defaults()
	var err error
	if p.Enabled, err = s.getBool(ctx, keyEnabled, p.Enabled); err != nil {
		return Prefs{}, err
	}
	if p.DarkMode, err = s.getBool(ctx, keyDarkMode, p.DarkMode); err != nil {
		return Prefs{}, err
	}
	return p, nil
}

// SetEnabled stores the enable switch.
func (s *Store) SetEnabled(ctx context.Context, on bool) error {
	return s.setBool(ctx, keyEnabled, on)
}

// SetDarkMode stores the theme switch.
func (s *Store) SetDarkMode(ctx context.Context, on bool) error {
	return s.setBool(ctx, keyDarkMode, on)
}

func (s *Store) getBool(ctx context.Context, key string, def bool) (bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("prefs: get %s: %w", key, err)
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("prefs: %s: %w", key, err)
	}
	return b, nil
}

func (s *Store) setBool(ctx context.Context, key string, v bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prefs (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, strconv.FormatBool(v))
	if err != nil {
		return fmt.Errorf("prefs: set %s: %w", key, err)
	}
	return nil
}
