// Package session owns the signed-in identity and the single live
// subscription to that identity's records. It is the only path between the
// application and the record store.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/identity"
	applog "finanzas/internal/log"
	"finanzas/internal/records"
)

// Identity is the sign-in side of a session.
type Identity interface {
	SignInAnonymous(ctx context.Context) (string, error)
	SignInWithToken(ctx context.Context, token string) (string, error)
	SignOut()
	OnChange(fn identity.Listener) (cancel func())
}

type Options struct {
	// Token, when set, is used for sign-in instead of an anonymous identity.
	Token  string
	Logger *applog.Logger
	Now    func() time.Time
}

type Session struct {
	identity Identity
	store    records.Store
	token    string
	logger   *applog.Logger
	now      func() time.Time

	// subMu serializes identity changes so a subscription is always released
	// before the next one is opened.
	subMu sync.Mutex

	mu          sync.Mutex
	state       State
	userID      string
	records     []core.Record
	loaded      bool
	fault       *Fault
	gen         uint64
	version     uint64
	unsubscribe records.Unsubscribe
	watchers    map[int]chan struct{}
	nextWatch   int
	closed      bool

	stopIdentity func()
	writes       sync.WaitGroup
	bg           context.Context
	cancelBg     context.CancelFunc
}

// New creates a session and starts following id's identity changes. It does
// not sign in; call SignIn.
func New(id Identity, store records.Store, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = applog.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	bg, cancel := context.WithCancel(context.Background())
	s := &Session{
		identity: id,
		store:    store,
		token:    opts.Token,
		logger:   opts.Logger.WithComponent(applog.ComponentSession),
		now:      opts.Now,
		watchers: make(map[int]chan struct{}),
		bg:       bg,
		cancelBg: cancel,
	}
	s.stopIdentity = id.OnChange(s.handleIdentity)
	return s
}

// SignIn signs in with the configured token, or anonymously without one. A
// failure is recorded as an auth fault and leaves the session
// unauthenticated; SignIn may be called again.
func (s *Session) SignIn(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.state == StateAuthenticating {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = StateAuthenticating
	s.version++
	s.mu.Unlock()
	s.notify()

	var (
		userID string
		err    error
	)
	if s.token != "" {
		userID, err = s.identity.SignInWithToken(ctx, s.token)
	} else {
		userID, err = s.identity.SignInAnonymous(ctx)
	}
	if err != nil {
		s.mu.Lock()
		if s.state == StateAuthenticating {
			if s.userID == "" {
				s.state = StateUnauthenticated
			} else {
				s.state = prev
			}
		}
		s.fault = &Fault{Kind: FaultAuth, Err: err, At: s.now()}
		s.version++
		s.mu.Unlock()
		s.logger.Fields(ctx, slog.LevelError, "Sign-in failed",
			applog.NewFields().WithOperation(applog.OpSignIn).WithError(err, applog.ErrorTypeAuth))
		s.notify()
		return
	}
	// the provider normally reported the change already; this settles the
	// state when the identity did not change
	s.handleIdentity(userID)
}

// SignOut drops the identity and releases the subscription.
func (s *Session) SignOut() {
	s.identity.SignOut()
	s.handleIdentity("")
}

// Create submits d for the current user in the background. Validation errors
// are returned; remote failures become write faults. Without a signed-in
// user Create does nothing.
func (s *Session) Create(ctx context.Context, d core.Draft) error {
	if err := d.Validate(); err != nil {
		return err
	}
	userID, ok := s.beginWrite()
	if !ok {
		s.logger.DebugContext(ctx, "Create ignored, not signed in")
		return nil
	}
	go func() {
		defer s.writes.Done()
		id, err := s.store.Insert(s.bg, userID, d)
		if err != nil {
			s.writeFailed(applog.OpCreate, userID, err)
			return
		}
		s.logger.Fields(s.bg, slog.LevelInfo, "Record created",
			applog.NewFields().WithOperation(applog.OpCreate).WithUser(userID).
				WithRecord(id, string(d.Type), d.Date.String(), d.Amount.Cents))
	}()
	return nil
}

// Delete removes the current user's record id in the background, with the
// same policy as Create.
func (s *Session) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	userID, ok := s.beginWrite()
	if !ok {
		s.logger.DebugContext(ctx, "Delete ignored, not signed in", applog.FieldRecordID, id)
		return nil
	}
	go func() {
		defer s.writes.Done()
		if err := s.store.DeleteByID(s.bg, userID, id); err != nil {
			s.writeFailed(applog.OpDelete, userID, err)
			return
		}
		s.logger.Fields(s.bg, slog.LevelInfo, "Record deleted",
			applog.NewFields().WithOperation(applog.OpDelete).WithUser(userID).With(applog.FieldRecordID, id))
	}()
	return nil
}

// Records returns the last snapshot of the current user's records.
func (s *Session) Records() []core.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Record(nil), s.records...)
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:   s.state,
		UserID:  s.userID,
		Loaded:  s.loaded,
		Records: len(s.records),
		Version: s.version,
		Fault:   s.fault,
	}
}

// Watch returns a channel that receives a signal after every change of the
// session's status or records. Signals are coalesced.
func (s *Session) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

// Wait blocks until every write submitted so far has finished.
func (s *Session) Wait() {
	s.writes.Wait()
}

// Close stops following the identity, waits for in-flight writes and
// releases the subscription.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.stopIdentity()
	s.writes.Wait()

	s.subMu.Lock()
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.gen++
	for id, ch := range s.watchers {
		close(ch)
		delete(s.watchers, id)
	}
	s.mu.Unlock()
	s.subMu.Unlock()

	if unsub != nil {
		unsub()
	}
	s.cancelBg()
}

func (s *Session) beginWrite() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.userID == "" {
		return "", false
	}
	s.writes.Add(1)
	return s.userID, true
}

func (s *Session) writeFailed(op, userID string, err error) {
	s.mu.Lock()
	s.fault = &Fault{Kind: FaultWrite, Err: err, At: s.now()}
	s.version++
	s.mu.Unlock()
	s.logger.Fields(s.bg, slog.LevelError, "Write failed",
		applog.NewFields().WithOperation(op).WithUser(userID).WithError(err, applog.ErrorTypeWrite))
	s.notify()
}

// handleIdentity moves the subscription to userID. It is the identity
// listener and is safe to call repeatedly with the same id.
func (s *Session) handleIdentity(userID string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if userID == s.userID && (userID == "" || s.unsubscribe != nil) {
		if s.state == StateAuthenticating {
			s.state = s.settledLocked()
			s.version++
		}
		s.mu.Unlock()
		s.notify()
		return
	}

	old := s.unsubscribe
	s.unsubscribe = nil
	s.gen++
	gen := s.gen
	s.userID = userID
	s.records = nil
	s.loaded = false
	if userID == "" {
		s.state = StateUnauthenticated
	} else {
		s.state = StateAuthenticated
	}
	s.version++
	s.mu.Unlock()

	if old != nil {
		old()
	}
	s.notify()

	if userID == "" {
		s.logger.Info("Signed out, subscription released")
		return
	}

	unsub, err := s.store.Subscribe(s.bg, userID,
		func(recs []core.Record) { s.applySnapshot(gen, recs) },
		func(err error) { s.subscriptionFailed(gen, err) })

	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		if unsub != nil {
			unsub()
		}
		return
	}
	if err != nil {
		s.state = StateDegraded
		s.fault = &Fault{Kind: FaultSubscription, Err: err, At: s.now()}
		s.version++
		s.mu.Unlock()
		s.logger.Fields(s.bg, slog.LevelError, "Subscribe failed",
			applog.NewFields().WithOperation(applog.OpSubscribe).WithUser(userID).WithError(err, applog.ErrorTypeSubscription))
		s.notify()
		return
	}
	s.unsubscribe = unsub
	if s.state == StateAuthenticated {
		s.state = StateSubscribed
		s.version++
	}
	s.mu.Unlock()
	s.logger.Fields(s.bg, slog.LevelInfo, "Subscribed to records",
		applog.NewFields().WithOperation(applog.OpSubscribe).WithUser(userID))
	s.notify()
}

func (s *Session) settledLocked() State {
	switch {
	case s.userID == "":
		return StateUnauthenticated
	case s.fault != nil && s.fault.Kind == FaultSubscription:
		return StateDegraded
	case s.unsubscribe != nil:
		return StateSubscribed
	}
	return StateAuthenticated
}

func (s *Session) applySnapshot(gen uint64, recs []core.Record) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("Dropped snapshot from released subscription", applog.FieldRecordCount, len(recs))
		return
	}
	s.records = recs
	s.loaded = true
	if s.state == StateAuthenticated || s.state == StateDegraded {
		s.state = StateSubscribed
	}
	if s.fault != nil && s.fault.Kind == FaultSubscription {
		s.fault = nil
	}
	s.version++
	s.mu.Unlock()
	s.notify()
}

func (s *Session) subscriptionFailed(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = StateDegraded
	s.fault = &Fault{Kind: FaultSubscription, Err: err, At: s.now()}
	s.version++
	userID := s.userID
	s.mu.Unlock()
	s.logger.Fields(s.bg, slog.LevelError, "Live feed broken, keeping last snapshot",
		applog.NewFields().WithOperation(applog.OpSubscribe).WithUser(userID).WithError(err, applog.ErrorTypeSubscription))
	s.notify()
}

func (s *Session) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
