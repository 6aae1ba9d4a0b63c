package services

import (
	"context"
	"errors"
	"sync"

	"finanzas/internal/amqp"
	"finanzas/internal/core"
	"finanzas/internal/records"
	"finanzas/internal/storage"
)

// fakeRepo is an in-memory RecordRepository and MirrorSource.
type fakeRepo struct {
	mu        sync.Mutex
	items     map[string][]core.Record
	versions  map[string]int64
	mirrored  map[string]int64
	mirrorErr map[string]error
	listErr   error
	lists     int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		items:     map[string][]core.Record{},
		versions:  map[string]int64{},
		mirrored:  map[string]int64{},
		mirrorErr: map[string]error{},
	}
}

func (f *fakeRepo) ListByOwner(_ context.Context, owner string) ([]core.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]core.Record(nil), f.items[owner]...), nil
}

func (f *fakeRepo) Insert(_ context.Context, owner string, rec core.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[owner] = append(f.items[owner], rec)
	f.versions[owner]++
	return nil
}

func (f *fakeRepo) DeleteByID(_ context.Context, owner, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.items[owner] {
		if r.ID == id {
			f.items[owner] = append(f.items[owner][:i:i], f.items[owner][i+1:]...)
			f.versions[owner]++
			return nil
		}
	}
	return records.ErrNotFound
}

func (f *fakeRepo) Version(_ context.Context, owner string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versions[owner], nil
}

func (f *fakeRepo) Owners(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for o := range f.versions {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeRepo) PendingMirror(_ context.Context, limit int) ([]storage.OwnerVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.OwnerVersion
	for o, v := range f.versions {
		if v > f.mirrored[o] && len(out) < limit {
			out = append(out, storage.OwnerVersion{Owner: o, Version: v})
		}
	}
	return out, nil
}

func (f *fakeRepo) MarkMirrored(_ context.Context, owner string, version int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if version > f.mirrored[owner] {
		f.mirrored[owner] = version
	}
	delete(f.mirrorErr, owner)
	return nil
}

func (f *fakeRepo) MarkMirrorError(_ context.Context, owner string, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mirrorErr[owner] = cause
	return nil
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.RecordsChangedMessage
	err  error
}

func (p *fakePublisher) PublishRecordsChanged(_ context.Context, msg *amqp.RecordsChangedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func (p *fakePublisher) sent() []*amqp.RecordsChangedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*amqp.RecordsChangedMessage(nil), p.msgs...)
}

type fakeWriter struct {
	mu      sync.Mutex
	ledgers map[string]core.Ledger
	err     error
}

func (w *fakeWriter) WriteLedger(_ context.Context, userID string, ledger core.Ledger) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if w.ledgers == nil {
		w.ledgers = map[string]core.Ledger{}
	}
	w.ledgers[userID] = ledger
	return nil
}

var errBoom = errors.New("boom")
