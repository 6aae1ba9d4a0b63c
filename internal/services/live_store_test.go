package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"finanzas/internal/amqp"
	"finanzas/internal/core"
	"finanzas/internal/records"
)

func expense(desc string, cents int64) core.Draft {
	return core.Draft{Type: core.Expense, Description: desc, Amount: core.Money{Cents: cents}, Date: core.NewDate(2025, 1, 15)}
}

func awaitSnapshot(t *testing.T, ch <-chan []core.Record) []core.Record {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestLiveStore_WritesPushSnapshots(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	pub := &fakePublisher{}
	s := NewLiveStore(repo, pub, nil)
	defer s.Close()

	ch := make(chan []core.Record, 8)
	unsub, err := s.Subscribe(ctx, "u", func(r []core.Record) { ch <- r }, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()
	if got := awaitSnapshot(t, ch); len(got) != 0 {
		t.Fatalf("initial = %+v", got)
	}

	id, err := s.Insert(ctx, "u", expense("Luz", 5000))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if got := awaitSnapshot(t, ch); len(got) != 1 || got[0].ID != id {
		t.Fatalf("after insert = %+v", got)
	}

	if err := s.DeleteByID(ctx, "u", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := awaitSnapshot(t, ch); len(got) != 0 {
		t.Fatalf("after delete = %+v", got)
	}

	msgs := pub.sent()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	if msgs[1].UserID != "u" || msgs[1].Version != 2 || msgs[1].Origin != s.Origin() {
		t.Errorf("last message = %+v", msgs[1])
	}
}

func TestLiveStore_PublishFailureDoesNotFailWrite(t *testing.T) {
	s := NewLiveStore(newFakeRepo(), &fakePublisher{err: errBoom}, nil)
	defer s.Close()
	if _, err := s.Insert(context.Background(), "u", expense("x", 1)); err != nil {
		t.Fatalf("insert err = %v", err)
	}
}

func TestLiveStore_Validation(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	s := NewLiveStore(repo, nil, nil)
	defer s.Close()

	if _, err := s.Insert(ctx, "u", expense("", 1)); !errors.Is(err, core.ErrEmptyDescription) {
		t.Errorf("empty description err = %v", err)
	}
	if _, err := s.Insert(ctx, "", expense("x", 1)); !errors.Is(err, records.ErrNoUser) {
		t.Errorf("no user err = %v", err)
	}
	if err := s.DeleteByID(ctx, "u", "nope"); !errors.Is(err, records.ErrNotFound) {
		t.Errorf("missing delete err = %v", err)
	}
	if len(repo.items["u"]) != 0 {
		t.Errorf("invalid draft reached the repository")
	}
}

func TestLiveStore_SubscribeLoadError(t *testing.T) {
	repo := newFakeRepo()
	repo.listErr = errBoom
	s := NewLiveStore(repo, nil, nil)
	defer s.Close()

	if _, err := s.Subscribe(context.Background(), "u", func([]core.Record) {}, nil); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v", err)
	}
	if n := s.hub.Subscribers("u"); n != 0 {
		t.Fatalf("failed subscription left %d subscribers", n)
	}
}

func TestLiveStore_RemoteChangeRefreshesSubscribers(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	s := NewLiveStore(repo, nil, nil)
	defer s.Close()

	ch := make(chan []core.Record, 8)
	unsub, err := s.Subscribe(ctx, "u", func(r []core.Record) { ch <- r }, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()
	awaitSnapshot(t, ch)

	// another process wrote directly to the shared database
	_ = repo.Insert(ctx, "u", expense("remote", 700).WithID("r1"))

	if err := s.HandleRecordsChanged(ctx, amqp.NewRecordsChangedMessage("u", 1, "other")); err != nil {
		t.Fatal(err)
	}
	if got := awaitSnapshot(t, ch); len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("after remote change = %+v", got)
	}
}

func TestLiveStore_IgnoresOwnAndUnwatchedEvents(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	s := NewLiveStore(repo, nil, nil)
	defer s.Close()

	if err := s.HandleRecordsChanged(ctx, amqp.NewRecordsChangedMessage("nobody", 1, "other")); err != nil {
		t.Fatal(err)
	}
	unsub, _ := s.Subscribe(ctx, "u", func([]core.Record) {}, nil)
	defer unsub()
	before := repo.lists
	if err := s.HandleRecordsChanged(ctx, amqp.NewRecordsChangedMessage("u", 1, s.Origin())); err != nil {
		t.Fatal(err)
	}
	if repo.lists != before {
		t.Errorf("own event triggered a reload")
	}
}

func TestLiveStore_ReloadFailureReachesErrorCallback(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	s := NewLiveStore(repo, nil, nil)
	defer s.Close()

	errs := make(chan error, 1)
	unsub, err := s.Subscribe(ctx, "u", func([]core.Record) {}, func(err error) { errs <- err })
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()

	repo.mu.Lock()
	repo.listErr = errBoom
	repo.mu.Unlock()

	if _, err := s.Insert(ctx, "u", expense("x", 1)); err != nil {
		t.Fatalf("insert should succeed even if reload fails: %v", err)
	}
	select {
	case err := <-errs:
		if !errors.Is(err, errBoom) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error delivered")
	}
}
