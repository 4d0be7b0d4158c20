package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrNoReceiver means no attached surface handles the message.
	ErrNoReceiver = errors.New("bridge: no receiving end")
	// ErrNoResponse means the request was abandoned: the receiver detached
	// or the caller stopped waiting.
	ErrNoResponse = errors.New("bridge: no response")
	// ErrUnknownAction is returned by Decode for an action outside the set.
	ErrUnknownAction = errors.New("bridge: unknown action")
	// ErrInvalidMessage is returned by Decode for a malformed message.
	ErrInvalidMessage = errors.New("bridge: invalid message")
)

// NoReceiverError names the surface and action that could not be delivered.
// It matches ErrNoReceiver with errors.Is.
type NoReceiverError struct {
	Surface Surface
	Action  Action
}

func (e *NoReceiverError) Error() string {
	return fmt.Sprintf("bridge: no receiving end for %s on %s", e.Action, e.Surface)
}

func (e *NoReceiverError) Is(target error) bool { return target == ErrNoReceiver }
