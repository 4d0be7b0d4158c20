package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hazyhaar/clippy/idgen"
)

// RedisStore keeps each user's log in a Redis stream. The stream entry id
// is the cursor, and its millisecond part is the timestamp, so the server
// clock orders entries even with several writers.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	block  time.Duration
	newID  idgen.Generator
	logger *slog.Logger
}

// OpenRedis parses a redis:// URL, connects and pings.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("chat: redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("chat: redis ping: %w", err)
	}
	return client, nil
}

// NewRedisStore wraps client. Keys are "clippy:chat:<userID>".
func NewRedisStore(client redis.UniversalClient, opts ...StoreOption) *RedisStore {
	cfg := buildConfig(opts)
	return &RedisStore{
		client: client,
		prefix: "clippy:chat:",
		block:  5 * time.Second,
		newID:  cfg.newID,
		logger: cfg.logger,
	}
}

func (s *RedisStore) key(userID string) string { return s.prefix + userID }

// Append adds an entry with XADD and a server-assigned id.
func (s *RedisStore) Append(ctx context.Context, userID, sender, text string) (Message, error) {
	msg := Message{ID: s.newID(), Sender: sender, Text: text}
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.key(userID),
		Values: map[string]any{"id": msg.ID, "sender": sender, "text": text},
	}).Result()
	if err != nil {
		return Message{}, fmt.Errorf("chat: xadd: %w", err)
	}
	msg.Cursor = Cursor(id)
	msg.Timestamp, err = streamMillis(id)
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

// List reads entries strictly after the cursor.
func (s *RedisStore) List(ctx context.Context, userID string, after Cursor) ([]Message, error) {
	start := "-"
	if after != "" {
		if _, err := streamMillis(string(after)); err != nil {
			return nil, err
		}
		start = "(" + string(after)
	}
	entries, err := s.client.XRange(ctx, s.key(userID), start, "+").Result()
	if err != nil {
		return nil, fmt.Errorf("chat: xrange: %w", err)
	}
	out := make([]Message, 0, len(entries))
	for _, e := range entries {
		m, err := fromStream(e)
		if err != nil {
			s.logger.Warn("chat: skipping malformed stream entry", "user_id", userID, "entry", e.ID, "error", err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Reset empties the user's stream. The key is trimmed rather than deleted
// so the stream keeps its last id: entries appended afterwards sort after
// every cursor handed out before the reset.
func (s *RedisStore) Reset(ctx context.Context, userID string) error {
	if err := s.client.XTrimMaxLen(ctx, s.key(userID), 0).Err(); err != nil {
		return fmt.Errorf("chat: xtrim: %w", err)
	}
	return nil
}

// Wait blocks on XREAD until an entry after the cursor arrives.
func (s *RedisStore) Wait(ctx context.Context, userID string, after Cursor) error {
	id := "0-0"
	if after != "" {
		id = string(after)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{s.key(userID), id},
			Count:   1,
			Block:   s.block,
		}).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("chat: xread: %w", err)
		}
		for _, st := range res {
			if len(st.Messages) > 0 {
				return nil
			}
		}
	}
}

func fromStream(e redis.XMessage) (Message, error) {
	ts, err := streamMillis(e.ID)
	if err != nil {
		return Message{}, err
	}
	str := func(k string) string {
		v, _ := e.Values[k].(string)
		return v
	}
	m := Message{
		ID:        str("id"),
		Sender:    str("sender"),
		Text:      str("text"),
		Timestamp: ts,
		Cursor:    Cursor(e.ID),
	}
	if m.ID == "" {
		m.ID = e.ID
	}
	return m, nil
}

// streamMillis extracts the millisecond part of a stream id "<ms>-<seq>".
func streamMillis(id string) (int64, error) {
	ms, seq, ok := strings.Cut(id, "-")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrBadCursor, id)
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadCursor, id)
	}
	if _, err := strconv.ParseUint(seq, 10, 64); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadCursor, id)
	}
	return n, nil
}
