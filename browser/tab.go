package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/clippy/clipboard"
)

// Tab is a page the user picks elements in.
type Tab struct {
	Page    *rod.Page
	PageURL string
	manager *Manager
}

// OpenTab creates a tab, applies stealth and resource blocking, and
// navigates to pageURL.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	var page *rod.Page
	var err error
	if mgr.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, mgr.cfg.ResourceBlocking); err != nil {
			mgr.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return &Tab{Page: page, PageURL: pageURL, manager: mgr}, nil
}

// GetFullDOM serialises the document as outer HTML.
func (t *Tab) GetFullDOM(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// ReadText reads the clipboard in the page context. A denied permission
// or an unfocused page surfaces as an error. A page without the clipboard
// API (an insecure origin such as about:blank) reports
// clipboard.ErrUnavailable.
func (t *Tab) ReadText(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => navigator.clipboard ? navigator.clipboard.readText() : null`)
	if err != nil {
		return "", fmt.Errorf("browser: read clipboard: %w", evalCause(err))
	}
	if res.Value.Nil() {
		return "", clipboard.ErrUnavailable
	}
	s := res.Value.Str()
	if s == "" {
		return "", clipboard.ErrEmpty
	}
	return s, nil
}

// WriteText writes the clipboard in the page context.
func (t *Tab) WriteText(ctx context.Context, text string) error {
	_, err := t.Page.Context(ctx).Eval(`(t) => navigator.clipboard.writeText(t)`, text)
	if err != nil {
		return fmt.Errorf("browser: write clipboard: %w", evalCause(err))
	}
	return nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}

// evalCause trims a page exception down to its first line, which carries
// the DOMException name and message.
func evalCause(err error) error {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i > 0 {
		return fmt.Errorf("%s", msg[:i])
	}
	return err
}

var (
	_ clipboard.Reader = (*Tab)(nil)
	_ clipboard.Writer = (*Tab)(nil)
)
