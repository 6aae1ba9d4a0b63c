// Package app is the top-level controller: it owns the session, the active
// view and the displayed calendar month, and recomputes the ledger and
// calendar from the current record set on every read.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/session"
)

// Session is the part of session.Session the controller drives.
type Session interface {
	SignIn(ctx context.Context)
	SignOut()
	Create(ctx context.Context, d core.Draft) error
	Delete(ctx context.Context, id string) error
	Records() []core.Record
	Status() session.Status
	Watch() (<-chan struct{}, func())
}

// Form identifies which form submitted a record.
type Form string

const (
	// FormQuick is the ledger's quick form; its date defaults to today.
	FormQuick Form = "quick"
	// FormPlanner schedules future entries and requires a date.
	FormPlanner Form = "planner"
)

// ErrInvalidForm wraps every error caused by the submitted form values.
var ErrInvalidForm = errors.New("invalid form")

// RecordForm is a record as typed into a form.
type RecordForm struct {
	Form        Form
	Type        string
	Description string
	Amount      string
	Date        string
}

type Options struct {
	// Month is the initial displayed month. Zero means the current month.
	Month  core.YearMonth
	Now    func() time.Time
	Logger *applog.Logger
}

type App struct {
	session Session
	router  *Router
	now     func() time.Time
	logger  *applog.Logger

	mu    sync.RWMutex
	month core.YearMonth
}

// Status is everything a client needs to render chrome around a view.
type Status struct {
	Session session.Status
	// Loading is true while a signed-in user waits for the first snapshot.
	Loading bool
	View    View
	Month   core.YearMonth
}

func New(s Session, opts Options) *App {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = applog.Discard()
	}
	month := opts.Month
	if month.Year == 0 {
		month = core.MonthOf(core.DateOf(opts.Now()))
	}
	return &App{
		session: s,
		router:  NewRouter(),
		now:     opts.Now,
		logger:  opts.Logger.WithComponent(applog.ComponentApp),
		month:   month,
	}
}

func (a *App) SignIn(ctx context.Context) { a.session.SignIn(ctx) }

func (a *App) SignOut() { a.session.SignOut() }

// Watch forwards the session's change notifications.
func (a *App) Watch() (<-chan struct{}, func()) { return a.session.Watch() }

func (a *App) Status() Status {
	st := a.session.Status()
	return Status{
		Session: st,
		Loading: st.State == session.StateAuthenticating ||
			(st.UserID != "" && !st.Loaded && st.State != session.StateDegraded),
		View:  a.router.Active(),
		Month: a.Month(),
	}
}

func (a *App) Records() []core.Record {
	return a.session.Records()
}

func (a *App) Ledger() core.Ledger {
	return core.BuildLedger(a.session.Records())
}

// Calendar builds the displayed month.
func (a *App) Calendar() core.MonthCalendar {
	return a.CalendarFor(a.Month())
}

// CalendarFor builds ym without changing the displayed month.
func (a *App) CalendarFor(ym core.YearMonth) core.MonthCalendar {
	return core.BuildMonthCalendar(a.session.Records(), ym, a.today())
}

func (a *App) Month() core.YearMonth {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.month
}

// ChangeMonth moves the displayed month by delta months and returns it.
func (a *App) ChangeMonth(delta int) core.YearMonth {
	a.mu.Lock()
	a.month = a.month.AddMonths(delta)
	ym := a.month
	a.mu.Unlock()
	a.logger.Debug("Month changed", applog.FieldMonth, ym.String())
	return ym
}

func (a *App) SetMonth(ym core.YearMonth) {
	a.mu.Lock()
	a.month = ym
	a.mu.Unlock()
	a.logger.Debug("Month set", applog.FieldMonth, ym.String())
}

func (a *App) View() View { return a.router.Active() }

func (a *App) SwitchView(name string) (View, error) {
	v, err := a.router.Switch(name)
	if err != nil {
		return v, err
	}
	a.logger.Debug("View switched", applog.FieldView, string(v))
	return v, nil
}

// ParseRecordForm turns form values into a draft. The quick form's date
// defaults to today.
func (a *App) ParseRecordForm(f RecordForm) (core.Draft, error) {
	var errs []error

	typ, err := core.ParseRecordType(f.Type)
	if err != nil {
		errs = append(errs, err)
	}

	desc := strings.TrimSpace(f.Description)
	if desc == "" {
		errs = append(errs, core.ErrEmptyDescription)
	}

	cents, err := core.ParseDecimalToCents(f.Amount)
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: %q", err, f.Amount))
	}

	var date core.Date
	switch {
	case strings.TrimSpace(f.Date) != "":
		if date, err = core.ParseDate(f.Date); err != nil {
			errs = append(errs, err)
		}
	case f.Form == FormPlanner:
		errs = append(errs, core.ErrEmptyDate)
	default:
		date = a.today()
	}

	if len(errs) > 0 {
		return core.Draft{}, fmt.Errorf("%w: %w", ErrInvalidForm, errors.Join(errs...))
	}
	d := core.Draft{Type: typ, Description: desc, Amount: core.Money{Cents: cents}, Date: date}
	if err := d.Validate(); err != nil {
		return core.Draft{}, fmt.Errorf("%w: %w", ErrInvalidForm, err)
	}
	return d, nil
}

// AddRecord validates f and hands the draft to the session. The record shows
// up with the next snapshot.
func (a *App) AddRecord(ctx context.Context, f RecordForm) (core.Draft, error) {
	d, err := a.ParseRecordForm(f)
	if err != nil {
		a.logger.Fields(ctx, slog.LevelWarn, "Record form rejected",
			applog.NewFields().WithOperation(applog.OpCreate).WithError(err, applog.ErrorTypeValidation).
				With("form", string(f.Form)))
		return core.Draft{}, err
	}
	if err := a.session.Create(ctx, d); err != nil {
		return core.Draft{}, fmt.Errorf("%w: %w", ErrInvalidForm, err)
	}
	return d, nil
}

func (a *App) DeleteRecord(ctx context.Context, id string) error {
	return a.session.Delete(ctx, strings.TrimSpace(id))
}

func (a *App) today() core.Date {
	return core.DateOf(a.now())
}
