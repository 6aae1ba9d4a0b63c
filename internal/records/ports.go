package records

import (
	"context"
	"errors"

	"finanzas/internal/core"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrNoUser   = errors.New("no user id")
)

type (
	// SnapshotFunc receives the full record set of a user. The slice is
	// shared between subscribers and must not be modified.
	SnapshotFunc func(records []core.Record)

	// ErrorFunc receives subscription failures.
	ErrorFunc func(err error)

	// Unsubscribe releases a subscription. It is safe to call more than once.
	Unsubscribe func()
)

// Ports for the record store.
type (
	Subscriber interface {
		// Subscribe delivers the user's current record set, then a fresh set
		// after every change, in order, until the subscription is released.
		Subscribe(ctx context.Context, userID string, onSnapshot SnapshotFunc, onError ErrorFunc) (Unsubscribe, error)
	}

	Writer interface {
		// Insert stores a new record owned by userID and returns its id.
		Insert(ctx context.Context, userID string, d core.Draft) (id string, err error)
		// DeleteByID removes the user's record with this id.
		DeleteByID(ctx context.Context, userID string, id string) error
	}

	Store interface {
		Subscriber
		Writer
	}
)
