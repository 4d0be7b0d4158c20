package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// PanelOpener shows the side panel URL in its own page, reusing the page
// while it stays open.
type PanelOpener struct {
	mgr *Manager
	url string

	mu   sync.Mutex
	page *rod.Page
}

// NewPanelOpener returns an opener for url.
func NewPanelOpener(mgr *Manager, url string) *PanelOpener {
	return &PanelOpener{mgr: mgr, url: url}
}

// Open brings the panel page to the front, creating it if needed.
func (p *PanelOpener) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.page != nil {
		if _, err := p.page.Context(ctx).Activate(); err == nil {
			return nil
		}
		p.page = nil
	}

	b := p.mgr.Browser()
	if b == nil {
		return fmt.Errorf("browser: no active browser")
	}
	page, err := b.Context(ctx).Page(proto.TargetCreateTarget{URL: p.url})
	if err != nil {
		return fmt.Errorf("browser: open panel: %w", err)
	}
	p.page = page
	p.mgr.cfg.Logger.Info("browser: side panel opened", "url", p.url)
	return nil
}
