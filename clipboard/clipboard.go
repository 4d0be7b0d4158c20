// Package clipboard reads and writes clipboard text.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/atotto/clipboard"
)

// ErrEmpty is returned when the clipboard holds no text.
var ErrEmpty = errors.New("clipboard: empty")

// ErrUnavailable is returned when no clipboard backend is usable.
var ErrUnavailable = errors.New("clipboard: unavailable")

// Reader reads clipboard text.
type Reader interface {
	ReadText(ctx context.Context) (string, error)
}

// Writer writes clipboard text.
type Writer interface {
	WriteText(ctx context.Context, text string) error
}

// System is the host clipboard through atotto/clipboard (xclip, xsel or
// wl-clipboard on Linux, pbcopy on macOS, the Win32 API on Windows).
type System struct{}

func (System) ReadText(ctx context.Context) (string, error) {
	if clipboard.Unsupported {
		return "", ErrUnavailable
	}
	s, err := clipboard.ReadAll()
	if err != nil {
		return "", fmt.Errorf("clipboard: read: %w", err)
	}
	if s == "" {
		return "", ErrEmpty
	}
	return s, nil
}

func (System) WriteText(ctx context.Context, text string) error {
	if clipboard.Unsupported {
		return ErrUnavailable
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard: write: %w", err)
	}
	return nil
}

// Memory is an in-process clipboard. The zero value is empty and ready.
type Memory struct {
	mu   sync.Mutex
	text string
	// Err, when set, fails every operation. It simulates denied access.
	Err error
}

func (m *Memory) ReadText(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	if m.text == "" {
		return "", ErrEmpty
	}
	return m.text, nil
}

func (m *Memory) WriteText(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.text = text
	return nil
}

// Fallback reads from the first reader that has a clipboard at all. Only
// ErrUnavailable moves on to the next reader; any other error, a denied
// permission or an empty clipboard, is the answer.
type Fallback []Reader

func (f Fallback) ReadText(ctx context.Context) (string, error) {
	for _, r := range f {
		s, err := r.ReadText(ctx)
		if errors.Is(err, ErrUnavailable) {
			continue
		}
		return s, err
	}
	return "", ErrUnavailable
}
