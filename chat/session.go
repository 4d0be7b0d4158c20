package chat

import (
	"context"
	"fmt"
	"strings"
)

// Identity is the signed-in user a Session writes as.
type Identity struct {
	ID    string
	Email string
}

// Session binds one user to a Store. It keeps no local copy of the log:
// everything shown comes back through Subscribe.
type Session struct {
	store Store
	user  Identity
}

// NewSession requires a live user.
func NewSession(store Store, user Identity) (*Session, error) {
	if user.ID == "" || user.Email == "" {
		return nil, ErrNoUser
	}
	return &Session{store: store, user: user}, nil
}

// User returns the session's identity.
func (s *Session) User() Identity { return s.user }

// Send appends text with the user's email as sender. Surrounding
// whitespace is trimmed and empty text is refused.
func (s *Session) Send(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	m, err := s.store.Append(ctx, s.user.ID, s.user.Email, text)
	if err != nil {
		return Message{}, fmt.Errorf("chat: send: %w", err)
	}
	return m, nil
}

// Subscribe calls fn once for every existing entry and then for every new
// one, in store order, until ctx ends. It returns ctx.Err() on
// cancellation or the first store error.
func (s *Session) Subscribe(ctx context.Context, fn func(Message)) error {
	var cursor Cursor
	for {
		msgs, err := s.store.List(ctx, s.user.ID, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("chat: subscribe: %w", err)
		}
		for _, m := range msgs {
			fn(m)
			cursor = m.Cursor
		}
		if err := s.store.Wait(ctx, s.user.ID, cursor); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("chat: subscribe: %w", err)
		}
	}
}

// History returns the whole log, oldest first.
func (s *Session) History(ctx context.Context) ([]Message, error) {
	msgs, err := s.store.List(ctx, s.user.ID, "")
	if err != nil {
		return nil, fmt.Errorf("chat: history: %w", err)
	}
	return msgs, nil
}

// Reset deletes the whole log. An append racing with it may be lost or
// may survive.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.store.Reset(ctx, s.user.ID); err != nil {
		return fmt.Errorf("chat: reset: %w", err)
	}
	return nil
}
