package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2024, 2, 29), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseRecordType(t *testing.T) {
	cases := []struct {
		in   string
		want RecordType
		ok   bool
	}{
		{"income", Income, true},
		{"EXPENSE", Expense, true},
		{"ingreso", Income, true},
		{" gasto ", Expense, true},
		{"transfer", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseRecordType(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q: expected %q, got %q (err=%v)", tc.in, tc.want, got, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidType) {
			t.Fatalf("%q: expected ErrInvalidType, got %v", tc.in, err)
		}
	}
}

func TestDraftValidate(t *testing.T) {
	good := Draft{
		Type:        Expense,
		Description: "rent",
		Amount:      Money{Cents: 100},
		Date:        NewDate(2025, 1, 1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	zero := good
	zero.Amount = Money{}
	if err := zero.Validate(); err != nil {
		t.Fatalf("zero amount should be accepted, got %v", err)
	}
	accented := good
	accented.Description = strings.Repeat("ñ", 200)
	if err := accented.Validate(); err != nil {
		t.Fatalf("200 accented characters should be accepted, got %v", err)
	}

	bads := []struct {
		d    Draft
		want error
	}{
		{Draft{Type: "x", Description: "a", Amount: Money{Cents: 1}, Date: NewDate(2025, 1, 1)}, ErrInvalidType},
		{Draft{Type: Income, Description: "  ", Amount: Money{Cents: 1}, Date: NewDate(2025, 1, 1)}, ErrEmptyDescription},
		{Draft{Type: Income, Description: strings.Repeat("a", 201), Amount: Money{Cents: 1}, Date: NewDate(2025, 1, 1)}, ErrDescriptionLong},
		{Draft{Type: Income, Description: strings.Repeat("ó", 201), Amount: Money{Cents: 1}, Date: NewDate(2025, 1, 1)}, ErrDescriptionLong},
		{Draft{Type: Income, Description: "a", Amount: Money{Cents: -1}, Date: NewDate(2025, 1, 1)}, ErrInvalidAmount},
		{Draft{Type: Income, Description: "a", Amount: Money{Cents: 1}}, ErrEmptyDate},
	}
	for i, tc := range bads {
		if err := tc.d.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, err)
		}
	}
}

func TestRecordSigned(t *testing.T) {
	in := Record{Type: Income, Amount: Money{Cents: 500}}
	out := Record{Type: Expense, Amount: Money{Cents: 500}}
	if in.Signed().Cents != 500 || out.Signed().Cents != -500 {
		t.Fatalf("unexpected signed amounts: %v %v", in.Signed(), out.Signed())
	}
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(NewDate(2025, 1, 5))
	if err != nil || string(b) != `"2025-01-05"` {
		t.Fatalf("marshal: %s err=%v", b, err)
	}
	var d Date
	if err := json.Unmarshal([]byte(`"2024-02-29"`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !d.Equal(NewDate(2024, 2, 29)) {
		t.Fatalf("unexpected date %v", d)
	}
	if err := json.Unmarshal([]byte(`"05/01/2025"`), &d); err == nil {
		t.Fatalf("expected error for wrong layout")
	}
	if NewDate(2025, 1, 5).Display() != "05/01/2025" {
		t.Fatalf("unexpected display %q", NewDate(2025, 1, 5).Display())
	}
}
