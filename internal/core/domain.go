package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Income  RecordType = "income"
	Expense RecordType = "expense"
)

// DateLayout is the wire format of a Date.
const DateLayout = "2006-01-02"

const maxDescriptionLen = 200

type (
	RecordType string

	// Date is a civil calendar date. The time component is always UTC midnight.
	Date struct {
		time.Time
	}

	// Money is a signed amount in cents.
	Money struct {
		Cents int64
	}

	// Draft is a record as submitted by a form, before the store assigns an id.
	Draft struct {
		Type        RecordType
		Description string
		Amount      Money
		Date        Date
	}

	// Record is a persisted income or expense entry.
	Record struct {
		ID          string
		Type        RecordType
		Description string
		Amount      Money
		Date        Date
	}
)

var (
	ErrInvalidType      = errors.New("invalid record type")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrDescriptionLong  = errors.New("description too long (max 200 characters)")
	ErrEmptyDate        = errors.New("date cannot be zero")
)

// ParseRecordType accepts the canonical names and the legacy spellings.
func ParseRecordType(s string) (RecordType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "ingreso":
		return Income, nil
	case "expense", "gasto":
		return Expense, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
}

func (t RecordType) Valid() bool {
	return t == Income || t == Expense
}

// Sign is +1 for income and -1 for expense.
func (t RecordType) Sign() int64 {
	if t == Expense {
		return -1
	}
	return 1
}

// NewDate creates a new Date from year, month, day
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the time of day of t, keeping its civil date in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Display renders the date as DD/MM/YYYY.
func (d Date) Display() string {
	return d.Format("02/01/2006")
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrEmptyDate
	}
	return nil
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }

func (d Date) Equal(o Date) bool { return d.Time.Equal(o.Time) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Validate checks an amount usable as a record amount: zero is allowed, negative is not.
func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (d Draft) Validate() error {
	if !d.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, d.Type)
	}
	if len(strings.TrimSpace(d.Description)) == 0 {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(d.Description) > maxDescriptionLen {
		return ErrDescriptionLong
	}
	if err := d.Amount.Validate(); err != nil {
		return err
	}
	return d.Date.Validate()
}

// WithID turns the draft into a record with the given store id.
func (d Draft) WithID(id string) Record {
	return Record{
		ID:          id,
		Type:        d.Type,
		Description: strings.TrimSpace(d.Description),
		Amount:      d.Amount,
		Date:        d.Date,
	}
}

// Signed returns the amount with the direction of the record type applied.
func (r Record) Signed() Money {
	return Money{Cents: r.Type.Sign() * r.Amount.Cents}
}

func (r Record) Draft() Draft {
	return Draft{Type: r.Type, Description: r.Description, Amount: r.Amount, Date: r.Date}
}
