package session

import (
	"errors"
	"time"
)

// State of a Session.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	// StateAuthenticated has an identity but no live subscription yet.
	StateAuthenticated
	StateSubscribed
	// StateDegraded keeps serving the last snapshot after the live feed broke.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateSubscribed:
		return "subscribed"
	case StateDegraded:
		return "degraded"
	}
	return "unknown"
}

// FaultKind classifies remote failures.
type FaultKind string

const (
	FaultAuth         FaultKind = "auth_error"
	FaultSubscription FaultKind = "subscription_error"
	FaultWrite        FaultKind = "write_error"
)

var (
	ErrAuth         = errors.New("sign-in failed")
	ErrSubscription = errors.New("live feed broken")
	ErrWrite        = errors.New("write rejected")
	ErrClosed       = errors.New("session closed")
	ErrEmptyID      = errors.New("empty record id")
)

func (k FaultKind) sentinel() error {
	switch k {
	case FaultAuth:
		return ErrAuth
	case FaultSubscription:
		return ErrSubscription
	}
	return ErrWrite
}

// Fault is the last remote failure a session observed. It is kept for
// display and never returned from Create or Delete.
type Fault struct {
	Kind FaultKind
	Err  error
	At   time.Time
}

func (f *Fault) Error() string {
	return f.Kind.sentinel().Error() + ": " + f.Err.Error()
}

func (f *Fault) Unwrap() []error {
	return []error{f.Kind.sentinel(), f.Err}
}

// Status is a point-in-time view of a session.
type Status struct {
	State  State
	UserID string
	// Loaded is true once a snapshot for UserID has arrived.
	Loaded  bool
	Records int
	// Version increases with every applied snapshot or state change.
	Version uint64
	Fault   *Fault
}
