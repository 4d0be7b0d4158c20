// Package authgate tracks whether a user is signed in and notifies
// observers on every change. The side panel uses it to choose between its
// login and chat views, and the background coordinator uses it to decide
// whether a capture may be stored.
package authgate

import (
	"context"
	"errors"
	"fmt"
)

// State is SignedOut or SignedIn.
type State int

const (
	SignedOut State = iota
	SignedIn
)

func (s State) String() string {
	switch s {
	case SignedOut:
		return "signed_out"
	case SignedIn:
		return "signed_in"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// User is the live session user. Token is opaque outside this package.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Token string `json:"-"`
}

// Provider is the authentication backend.
type Provider interface {
	// SignIn checks credentials and opens a session.
	SignIn(ctx context.Context, email, password string) (User, error)
	// SignOut closes u's persisted session. It must leave a newer session
	// alone; a zero User closes whatever is persisted.
	SignOut(ctx context.Context, u User) error
	// Restore returns the session left from a previous run, if any.
	Restore(ctx context.Context) (User, bool, error)
	// Validate re-checks a session token. It returns an error wrapping
	// ErrSessionInvalid when the provider no longer accepts it.
	Validate(ctx context.Context, token string) (User, error)
}

var (
	ErrInvalidCredentials = errors.New("authgate: invalid email or password")
	ErrSessionInvalid     = errors.New("authgate: session no longer valid")
	ErrSignedOut          = errors.New("authgate: not signed in")
	ErrUserExists         = errors.New("authgate: user already exists")
)
