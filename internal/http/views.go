package http

import (
	"fmt"
	"time"

	"finanzas/internal/app"
	"finanzas/internal/core"
)

var monthNames = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// weekdays are the calendar column headers, Monday first.
var weekdays = []string{"Lu", "Ma", "Mi", "Ju", "Vi", "Sá", "Do"}

type faultView struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type statusView struct {
	State      string     `json:"state"`
	UserID     string     `json:"user_id,omitempty"`
	Loading    bool       `json:"loading"`
	Loaded     bool       `json:"loaded"`
	Records    int        `json:"records"`
	Version    uint64     `json:"version"`
	View       string     `json:"view"`
	Month      string     `json:"month"`
	MonthTitle string     `json:"month_title"`
	Fault      *faultView `json:"fault,omitempty"`
}

type recordView struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	TypeLabel   string `json:"type_label"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	DateDisplay string `json:"date_display"`
}

type ledgerEntryView struct {
	recordView
	BalanceCents int64  `json:"balance_cents"`
	Balance      string `json:"balance"`
}

type ledgerView struct {
	Entries    []ledgerEntryView `json:"entries"`
	TotalCents int64             `json:"total_cents"`
	Total      string            `json:"total"`
}

type dayView struct {
	Day          int          `json:"day"`
	Date         string       `json:"date"`
	IncomeCents  int64        `json:"income_cents"`
	Income       string       `json:"income"`
	ExpenseCents int64        `json:"expense_cents"`
	Expense      string       `json:"expense"`
	BalanceCents int64        `json:"balance_cents"`
	Balance      string       `json:"balance"`
	IsToday      bool         `json:"is_today"`
	HasMovements bool         `json:"has_movements"`
	Records      []recordView `json:"records"`
}

type calendarView struct {
	Month               string    `json:"month"`
	Title               string    `json:"title"`
	Weekdays            []string  `json:"weekdays"`
	LeadingBlanks       int       `json:"leading_blanks"`
	PriorBalanceCents   int64     `json:"prior_balance_cents"`
	PriorBalance        string    `json:"prior_balance"`
	ClosingBalanceCents int64     `json:"closing_balance_cents"`
	ClosingBalance      string    `json:"closing_balance"`
	Days                []dayView `json:"days"`
}

func monthTitle(ym core.YearMonth) string {
	if ym.Month < time.January || ym.Month > time.December {
		return ym.String()
	}
	return fmt.Sprintf("%s %d", monthNames[ym.Month-1], ym.Year)
}

func typeLabel(t core.RecordType) string {
	if t == core.Expense {
		return "Gasto"
	}
	return "Ingreso"
}

func newStatusView(st app.Status) statusView {
	v := statusView{
		State:      st.Session.State.String(),
		UserID:     st.Session.UserID,
		Loading:    st.Loading,
		Loaded:     st.Session.Loaded,
		Records:    st.Session.Records,
		Version:    st.Session.Version,
		View:       string(st.View),
		Month:      st.Month.String(),
		MonthTitle: monthTitle(st.Month),
	}
	if f := st.Session.Fault; f != nil {
		v.Fault = &faultView{Kind: string(f.Kind), Message: f.Error(), At: f.At}
	}
	return v
}

func newRecordView(r core.Record) recordView {
	return recordView{
		ID:          r.ID,
		Type:        string(r.Type),
		TypeLabel:   typeLabel(r.Type),
		Description: r.Description,
		AmountCents: r.Amount.Cents,
		Amount:      r.Amount.FormatWhole(),
		Date:        r.Date.String(),
		DateDisplay: r.Date.Display(),
	}
}

func newLedgerView(l core.Ledger) ledgerView {
	v := ledgerView{
		Entries:    make([]ledgerEntryView, 0, len(l.Entries)),
		TotalCents: l.Total.Cents,
		Total:      l.Total.FormatWhole(),
	}
	for _, e := range l.Entries {
		v.Entries = append(v.Entries, ledgerEntryView{
			recordView:   newRecordView(e.Record),
			BalanceCents: e.Balance.Cents,
			Balance:      e.Balance.FormatWhole(),
		})
	}
	return v
}

func newCalendarView(c core.MonthCalendar) calendarView {
	closing := c.ClosingBalance()
	v := calendarView{
		Month:               c.Month.String(),
		Title:               monthTitle(c.Month),
		Weekdays:            weekdays,
		LeadingBlanks:       c.LeadingBlanks,
		PriorBalanceCents:   c.PriorBalance.Cents,
		PriorBalance:        c.PriorBalance.FormatWhole(),
		ClosingBalanceCents: closing.Cents,
		ClosingBalance:      closing.FormatWhole(),
		Days:                make([]dayView, 0, len(c.Days)),
	}
	for _, d := range c.Days {
		dv := dayView{
			Day:          d.Day,
			Date:         d.Date.String(),
			IncomeCents:  d.Income.Cents,
			Income:       d.Income.FormatWhole(),
			ExpenseCents: d.Expense.Cents,
			Expense:      d.Expense.FormatWhole(),
			BalanceCents: d.Balance.Cents,
			Balance:      d.Balance.FormatWhole(),
			IsToday:      d.IsToday,
			HasMovements: d.HasMovements(),
			Records:      make([]recordView, 0, len(d.Records)),
		}
		for _, r := range d.Records {
			dv.Records = append(dv.Records, newRecordView(r))
		}
		v.Days = append(v.Days, dv)
	}
	return v
}
