package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"finanzas/internal/amqp"
	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/records"
)

// RecordRepository is the durable side of a LiveStore.
type RecordRepository interface {
	ListByOwner(ctx context.Context, owner string) ([]core.Record, error)
	Insert(ctx context.Context, owner string, rec core.Record) error
	DeleteByID(ctx context.Context, owner, id string) error
	Version(ctx context.Context, owner string) (int64, error)
}

// ChangePublisher announces record changes to other processes.
type ChangePublisher interface {
	PublishRecordsChanged(ctx context.Context, msg *amqp.RecordsChangedMessage) error
}

// LiveStore turns a RecordRepository into a records.Store. Every write
// reloads the owner's records and pushes them to local subscribers, then
// publishes a records.changed event when a publisher is configured.
type LiveStore struct {
	repo      RecordRepository
	publisher ChangePublisher
	hub       *records.Hub
	loads     singleflight.Group
	origin    string
	newID     func() string
	logger    *applog.Logger
}

var _ records.Store = (*LiveStore)(nil)

// NewLiveStore wires repo and an optional publisher. A nil publisher keeps
// change notifications local to this process.
func NewLiveStore(repo RecordRepository, publisher ChangePublisher, logger *applog.Logger) *LiveStore {
	if logger == nil {
		logger = applog.Discard()
	}
	return &LiveStore{
		repo:      repo,
		publisher: publisher,
		hub:       records.NewHub(),
		origin:    uuid.NewString(),
		newID:     uuid.NewString,
		logger:    logger.WithComponent(applog.ComponentRecords),
	}
}

// Origin identifies this store in published events.
func (s *LiveStore) Origin() string { return s.origin }

func (s *LiveStore) Subscribe(ctx context.Context, userID string, onSnapshot records.SnapshotFunc, onError records.ErrorFunc) (records.Unsubscribe, error) {
	if userID == "" {
		return nil, records.ErrNoUser
	}
	unsubscribe, primed := s.hub.Subscribe(userID, onSnapshot, onError)
	if primed {
		return unsubscribe, nil
	}
	if err := s.reload(ctx, userID, false); err != nil {
		unsubscribe()
		return nil, fmt.Errorf("load records: %w", err)
	}
	return unsubscribe, nil
}

func (s *LiveStore) Insert(ctx context.Context, userID string, d core.Draft) (string, error) {
	if userID == "" {
		return "", records.ErrNoUser
	}
	if err := d.Validate(); err != nil {
		return "", err
	}
	rec := d.WithID(s.newID())
	if err := s.repo.Insert(ctx, userID, rec); err != nil {
		return "", fmt.Errorf("save record: %w", err)
	}
	s.changed(ctx, userID)
	return rec.ID, nil
}

func (s *LiveStore) DeleteByID(ctx context.Context, userID, id string) error {
	if userID == "" {
		return records.ErrNoUser
	}
	if err := s.repo.DeleteByID(ctx, userID, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	s.changed(ctx, userID)
	return nil
}

// HandleRecordsChanged refreshes local subscribers after a change made by
// another process. Events from this store are ignored.
func (s *LiveStore) HandleRecordsChanged(ctx context.Context, msg *amqp.RecordsChangedMessage) error {
	if msg.Origin == s.origin || s.hub.Subscribers(msg.UserID) == 0 {
		return nil
	}
	if err := s.reload(ctx, msg.UserID, true); err != nil {
		s.hub.Fail(msg.UserID, err)
		return err
	}
	return nil
}

// Close stops every subscription.
func (s *LiveStore) Close() error {
	s.hub.Close()
	return nil
}

func (s *LiveStore) changed(ctx context.Context, userID string) {
	if s.hub.Subscribers(userID) > 0 {
		if err := s.reload(ctx, userID, true); err != nil {
			s.logger.Fields(ctx, slog.LevelError, "Failed to reload records after write",
				applog.NewFields().WithUser(userID).WithError(err, applog.ErrorTypeDatabase))
			s.hub.Fail(userID, err)
		}
	}
	if s.publisher == nil {
		return
	}
	version, err := s.repo.Version(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read owner version", applog.FieldUserID, userID, applog.FieldError, err)
	}
	// the write is committed; a lost event only delays other processes
	if err := s.publisher.PublishRecordsChanged(ctx, amqp.NewRecordsChangedMessage(userID, version, s.origin)); err != nil {
		s.logger.Fields(ctx, slog.LevelError, "Failed to publish records changed message",
			applog.NewFields().WithUser(userID).WithError(err, applog.ErrorTypeNetwork))
	}
}

// reload reads the owner's records and publishes them to the hub. Concurrent
// reloads for one owner share a read; fresh forces a read that starts after
// the caller's write.
func (s *LiveStore) reload(ctx context.Context, userID string, fresh bool) error {
	if fresh {
		s.loads.Forget(userID)
	}
	_, err, _ := s.loads.Do(userID, func() (any, error) {
		seq := s.hub.Next()
		recs, err := s.repo.ListByOwner(context.WithoutCancel(ctx), userID)
		if err != nil {
			return nil, err
		}
		s.hub.Publish(userID, seq, recs)
		return nil, nil
	})
	return err
}
