// Package memory is an in-process record store. Records live for the
// lifetime of the process.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"finanzas/internal/core"
	"finanzas/internal/records"
)

type Store struct {
	mu    sync.Mutex
	items map[string][]core.Record
	hub   *records.Hub
	newID func() string
}

var _ records.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		items: make(map[string][]core.Record),
		hub:   records.NewHub(),
		newID: uuid.NewString,
	}
}

// Subscribe delivers the user's records now and after every change.
func (s *Store) Subscribe(ctx context.Context, userID string, onSnapshot records.SnapshotFunc, onError records.ErrorFunc) (records.Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, records.ErrNoUser
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	unsubscribe, primed := s.hub.Subscribe(userID, onSnapshot, onError)
	if !primed {
		s.hub.Publish(userID, s.hub.Next(), s.items[userID])
	}
	return unsubscribe, nil
}

// Insert stores the draft and returns the generated id.
func (s *Store) Insert(ctx context.Context, userID string, d core.Draft) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if userID == "" {
		return "", records.ErrNoUser
	}
	if err := d.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := d.WithID(s.newID())
	s.items[userID] = append(s.items[userID], rec)
	s.hub.Publish(userID, s.hub.Next(), s.items[userID])
	return rec.ID, nil
}

// DeleteByID removes a record of the user.
func (s *Store) DeleteByID(ctx context.Context, userID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if userID == "" {
		return records.ErrNoUser
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items[userID]
	for i, r := range items {
		if r.ID != id {
			continue
		}
		next := make([]core.Record, 0, len(items)-1)
		next = append(next, items[:i]...)
		next = append(next, items[i+1:]...)
		s.items[userID] = next
		s.hub.Publish(userID, s.hub.Next(), next)
		return nil
	}
	return records.ErrNotFound
}

// List returns a copy of the user's records in insertion order.
func (s *Store) List(_ context.Context, userID string) ([]core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Record(nil), s.items[userID]...), nil
}

// Close stops all subscription goroutines.
func (s *Store) Close() error {
	s.hub.Close()
	return nil
}
