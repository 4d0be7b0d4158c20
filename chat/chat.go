// Package chat keeps a per-user, append-only message log and the session
// that binds it to the signed-in user.
//
// Two stores implement the log: SQLiteStore for a single machine and
// RedisStore for a log shared across devices. Both assign the timestamp on
// the server side and deliver entries in insertion order.
package chat

import (
	"context"
	"errors"
)

// Cursor is an opaque position in one user's log. The empty cursor is the
// start of the log.
type Cursor string

// Message is one log entry. Entries are never mutated after creation.
type Message struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // server time, unix milliseconds
	Cursor    Cursor `json:"cursor"`
}

// Store is the remote message log.
type Store interface {
	// Append adds an entry and returns it with server-assigned fields.
	Append(ctx context.Context, userID, sender, text string) (Message, error)
	// List returns the entries after the cursor, oldest first.
	List(ctx context.Context, userID string, after Cursor) ([]Message, error)
	// Reset deletes the whole log for userID.
	Reset(ctx context.Context, userID string) error
	// Wait blocks until the log may hold entries after the cursor, or ctx
	// ends. Spurious wakeups are allowed.
	Wait(ctx context.Context, userID string, after Cursor) error
}

var (
	ErrNoUser       = errors.New("chat: no signed-in user")
	ErrEmptyMessage = errors.New("chat: empty message")
	ErrBadCursor    = errors.New("chat: bad cursor")
)
