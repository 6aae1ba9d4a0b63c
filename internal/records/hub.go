package records

import (
	"sync"

	"finanzas/internal/core"
)

// Hub fans record snapshots out to the subscribers of each user.
//
// Every subscriber has its own delivery goroutine, so a slow subscriber never
// blocks a publisher or other subscribers. When a subscriber falls behind only
// the newest pending snapshot is kept. Publishers stamp each snapshot with a
// sequence number taken from Next before reading their source; snapshots older
// than the last one published for the user are dropped.
type Hub struct {
	mu      sync.Mutex
	seq     uint64
	nextSub uint64
	subs    map[string]map[uint64]*subscriber
	lastSeq map[string]uint64
	latest  map[string][]core.Record
	closed  bool
}

type event struct {
	records []core.Record
	err     error
}

type subscriber struct {
	onSnapshot SnapshotFunc
	onError    ErrorFunc

	mu      sync.Mutex
	pending *event
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewHub() *Hub {
	return &Hub{
		subs:    make(map[string]map[uint64]*subscriber),
		lastSeq: make(map[string]uint64),
		latest:  make(map[string][]core.Record),
	}
}

// Next reserves a sequence number for a snapshot about to be read.
func (h *Hub) Next() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	return h.seq
}

// Publish delivers records to every subscriber of userID. It returns false
// when the snapshot is older than one already published.
func (h *Hub) Publish(userID string, seq uint64, records []core.Record) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || seq <= h.lastSeq[userID] {
		return false
	}
	h.lastSeq[userID] = seq
	subs := h.subs[userID]
	if len(subs) == 0 {
		return true
	}
	snapshot := append([]core.Record(nil), records...)
	h.latest[userID] = snapshot
	for _, s := range subs {
		s.offer(&event{records: snapshot})
	}
	return true
}

// Fail reports err to every subscriber of userID.
func (h *Hub) Fail(userID string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs[userID] {
		s.offer(&event{err: err})
	}
}

// Subscribe registers callbacks for userID. When a snapshot for the user is
// already cached it is queued for delivery and primed is true; otherwise the
// caller is expected to publish one.
func (h *Hub) Subscribe(userID string, onSnapshot SnapshotFunc, onError ErrorFunc) (unsubscribe Unsubscribe, primed bool) {
	s := &subscriber{
		onSnapshot: onSnapshot,
		onError:    onError,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return func() {}, true
	}
	id := h.nextSub
	h.nextSub++
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[uint64]*subscriber)
	}
	h.subs[userID][id] = s
	cached, primed := h.latest[userID]
	if primed {
		s.offer(&event{records: cached})
	}
	h.mu.Unlock()

	go s.run()

	return func() { h.remove(userID, id) }, primed
}

// Subscribers returns the number of live subscriptions for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// Users returns the users with at least one live subscription.
func (h *Hub) Users() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	users := make([]string, 0, len(h.subs))
	for u := range h.subs {
		users = append(users, u)
	}
	return users
}

// Close stops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for userID, subs := range h.subs {
		for _, s := range subs {
			s.stop()
		}
		delete(h.subs, userID)
	}
	h.latest = make(map[string][]core.Record)
}

func (h *Hub) remove(userID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subs[userID]
	s, ok := subs[id]
	if !ok {
		return
	}
	s.stop()
	delete(subs, id)
	if len(subs) == 0 {
		// no one keeps the cache fresh any more
		delete(h.subs, userID)
		delete(h.latest, userID)
	}
}

func (s *subscriber) offer(ev *event) {
	s.mu.Lock()
	s.pending = ev
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		s.mu.Lock()
		ev := s.pending
		s.pending = nil
		s.mu.Unlock()
		if ev == nil {
			continue
		}
		select {
		case <-s.done:
			return
		default:
		}
		if ev.err != nil {
			if s.onError != nil {
				s.onError(ev.err)
			}
			continue
		}
		s.onSnapshot(ev.records)
	}
}
