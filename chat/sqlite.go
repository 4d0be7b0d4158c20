package chat

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hazyhaar/clippy/idgen"
	"github.com/hazyhaar/clippy/watch"
)

// SQLiteStore keeps the log in the chat_messages table. The database must
// have Schema applied.
type SQLiteStore struct {
	db     *sql.DB
	now    func() time.Time
	newID  idgen.Generator
	logger *slog.Logger
	feed   *feed
}

// StoreOption configures a store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	now    func() time.Time
	newID  idgen.Generator
	logger *slog.Logger
}

// WithClock overrides the server clock.
func WithClock(now func() time.Time) StoreOption {
	return func(c *storeConfig) { c.now = now }
}

// WithIDGenerator overrides message id generation.
func WithIDGenerator(g idgen.Generator) StoreOption {
	return func(c *storeConfig) { c.newID = g }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(c *storeConfig) { c.logger = l }
}

func buildConfig(opts []StoreOption) storeConfig {
	cfg := storeConfig{
		now:    time.Now,
		newID:  idgen.Prefixed("msg_", idgen.Default),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// NewSQLiteStore wraps db.
func NewSQLiteStore(db *sql.DB, opts ...StoreOption) *SQLiteStore {
	cfg := buildConfig(opts)
	return &SQLiteStore{
		db:     db,
		now:    cfg.now,
		newID:  cfg.newID,
		logger: cfg.logger,
		feed:   newFeed(),
	}
}

// Append inserts an entry. The timestamp is the later of the server clock
// and the newest existing entry, so it never decreases within a log.
func (s *SQLiteStore) Append(ctx context.Context, userID, sender, text string) (Message, error) {
	msg := Message{ID: s.newID(), Sender: sender, Text: text}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, user_id, sender, text, ts)
		SELECT ?, ?, ?, ?, MAX(?, COALESCE((SELECT MAX(ts) FROM chat_messages WHERE user_id = ?), 0))`,
		msg.ID, userID, sender, text, s.now().UnixMilli(), userID)
	if err != nil {
		return Message{}, fmt.Errorf("chat: append: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Message{}, fmt.Errorf("chat: append: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT ts FROM chat_messages WHERE seq = ?`, seq).Scan(&msg.Timestamp); err != nil {
		return Message{}, fmt.Errorf("chat: append: read timestamp: %w", err)
	}
	msg.Cursor = Cursor(strconv.FormatInt(seq, 10))

	s.feed.notify(userID)
	return msg, nil
}

// List returns entries after the cursor in insertion order.
func (s *SQLiteStore) List(ctx context.Context, userID string, after Cursor) ([]Message, error) {
	seq, err := parseSeq(after)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, sender, text, ts FROM chat_messages
		WHERE user_id = ? AND seq > ? ORDER BY seq`, userID, seq)
	if err != nil {
		return nil, fmt.Errorf("chat: list: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var seq int64
		if err := rows.Scan(&seq, &m.ID, &m.Sender, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("chat: list: scan: %w", err)
		}
		m.Cursor = Cursor(strconv.FormatInt(seq, 10))
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chat: list: %w", err)
	}
	return out, nil
}

// Reset deletes every entry for userID.
func (s *SQLiteStore) Reset(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("chat: reset: %w", err)
	}
	s.feed.notify(userID)
	return nil
}

// Wait returns once entries exist after the cursor. Appends through this
// store wake it at once. Appends from other processes need Watch running.
func (s *SQLiteStore) Wait(ctx context.Context, userID string, after Cursor) error {
	seq, err := parseSeq(after)
	if err != nil {
		return err
	}
	for {
		// Register before checking so an append in between is not missed.
		ch := s.feed.wait(userID)

		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM chat_messages WHERE user_id = ? AND seq > ?)`,
			userID, seq).Scan(&exists); err != nil {
			return fmt.Errorf("chat: wait: %w", err)
		}
		if exists {
			return nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Watch polls the table for rows written by other processes and wakes
// waiters when it grows. Blocks until ctx ends.
func (s *SQLiteStore) Watch(ctx context.Context, interval time.Duration) {
	w := watch.New(s.db, watch.Options{
		Interval: interval,
		Detector: watch.MaxColumnDetector("chat_messages", "seq"),
		Logger:   s.logger,
	})
	w.OnChange(ctx, func() error {
		s.feed.notifyAll()
		return nil
	})
}

func parseSeq(c Cursor) (int64, error) {
	if c == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(c), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadCursor, c)
	}
	return n, nil
}
