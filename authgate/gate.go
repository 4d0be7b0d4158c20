package authgate

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Transition describes one state change.
type Transition struct {
	From   State
	To     State
	User   User // the user signing in, or the one signing out
	Reason string
}

// Gate is the SignedOut/SignedIn state machine. Safe for concurrent use.
//
// Observers run outside the state lock, one transition at a time, in the
// order transitions happen. An observer may read the gate but must not
// drive a transition synchronously.
type Gate struct {
	provider Provider
	logger   *slog.Logger

	// notify serialises transitions with their notifications.
	notify sync.Mutex

	mu     sync.RWMutex
	state  State
	user   User
	subs   map[int]func(Transition)
	nextID int
}

// New returns a SignedOut gate. Call Start to restore a previous session.
func New(p Provider, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{provider: p, logger: logger, subs: make(map[int]func(Transition))}
}

// Start asks the provider for a restored session and signs it in.
func (g *Gate) Start(ctx context.Context) error {
	u, ok, err := g.provider.Restore(ctx)
	if err != nil {
		return err
	}
	if ok {
		g.transition(SignedIn, u, "restored")
	}
	return nil
}

// SignIn submits credentials. On failure the state is unchanged and the
// provider error is returned for display.
func (g *Gate) SignIn(ctx context.Context, email, password string) (User, error) {
	u, err := g.provider.SignIn(ctx, email, password)
	if err != nil {
		g.logger.Info("authgate: sign-in failed", "email", email, "error", err)
		return User{}, err
	}
	g.transition(SignedIn, u, "signed in")
	return u, nil
}

// SignOut closes the session. Provider failures are logged and the gate
// still moves to SignedOut.
func (g *Gate) SignOut(ctx context.Context) error {
	u, ok := g.Current()
	if !ok {
		return nil
	}
	err := g.provider.SignOut(ctx, u)
	if err != nil {
		g.logger.Warn("authgate: provider sign-out failed", "error", err)
	}
	g.transition(SignedOut, u, "signed out")
	return err
}

// Invalidate moves to SignedOut because the provider rejected the session.
func (g *Gate) Invalidate(ctx context.Context, reason string) {
	u, ok := g.Current()
	if !ok {
		return
	}
	g.invalidate(ctx, u, reason)
}

// invalidate signs u out, unless a newer session replaced u meanwhile.
func (g *Gate) invalidate(ctx context.Context, u User, reason string) {
	if err := g.provider.SignOut(ctx, u); err != nil {
		g.logger.Warn("authgate: clear invalid session failed", "error", err)
	}
	if !g.transitionIf(u.Token, SignedOut, u, reason) {
		g.logger.Info("authgate: stale invalidation ignored", "email", u.Email)
		return
	}
	g.logger.Warn("authgate: session invalidated", "email", u.Email, "reason", reason)
}

// Current returns the live user.
func (g *Gate) Current() (User, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.user, g.state == SignedIn
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// CheckToken reports whether token belongs to the live session.
func (g *Gate) CheckToken(token string) bool {
	u, ok := g.Current()
	if !ok || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(u.Token)) == 1
}

// Subscribe registers fn for future transitions. The returned func
// unregisters it.
func (g *Gate) Subscribe(fn func(Transition)) (cancel func()) {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.subs[id] = fn
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.subs, id)
			g.mu.Unlock()
		})
	}
}

// Run re-validates the session every interval until ctx ends and
// invalidates it when the provider rejects the token.
func (g *Gate) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			g.Revalidate(ctx)
		}
	}
}

// Revalidate checks the live session once.
func (g *Gate) Revalidate(ctx context.Context) {
	u, ok := g.Current()
	if !ok {
		return
	}
	if _, err := g.provider.Validate(ctx, u.Token); err != nil {
		if errors.Is(err, ErrSessionInvalid) {
			g.invalidate(ctx, u, err.Error())
			return
		}
		g.logger.Warn("authgate: revalidation failed", "error", err)
	}
}

func (g *Gate) transition(to State, u User, reason string) {
	g.transitionIf("", to, u, reason)
}

// transitionIf applies the transition only while token is the live
// session's token. An empty token applies it unconditionally.
func (g *Gate) transitionIf(token string, to State, u User, reason string) bool {
	g.notify.Lock()
	defer g.notify.Unlock()

	g.mu.Lock()
	if token != "" && (g.state != SignedIn || g.user.Token != token) {
		g.mu.Unlock()
		return false
	}
	from := g.state
	same := from == to && g.user.ID == u.ID && g.user.Token == u.Token
	g.state = to
	if to == SignedIn {
		g.user = u
	} else {
		g.user = User{}
	}
	subs := make([]func(Transition), 0, len(g.subs))
	for i := 0; i < g.nextID; i++ {
		if fn, ok := g.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	g.mu.Unlock()

	if same {
		return true
	}
	g.logger.Info("authgate: state changed", "from", from, "to", to, "email", u.Email, "reason", reason)
	tr := Transition{From: from, To: to, User: u, Reason: reason}
	for _, fn := range subs {
		fn(tr)
	}
	return true
}
