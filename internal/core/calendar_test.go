package core

import (
	"reflect"
	"testing"
	"time"
)

func monthOf(m int) time.Month { return time.Month(m) }

func jan2025() YearMonth { return YearMonth{Year: 2025, Month: time.January} }

func TestCalendarDailyBalances(t *testing.T) {
	records := []Record{
		rec("salary", Income, 100000, 2025, 1, 5),
		rec("rent", Expense, 30000, 2025, 1, 10),
	}
	cal := BuildMonthCalendar(records, jan2025(), Date{})
	if cal.PriorBalance.Cents != 0 {
		t.Fatalf("prior balance=%d", cal.PriorBalance.Cents)
	}
	if len(cal.Days) != 31 {
		t.Fatalf("expected 31 days, got %d", len(cal.Days))
	}
	checks := map[int]int64{1: 0, 4: 0, 5: 100000, 9: 100000, 10: 70000, 31: 70000}
	for day, want := range checks {
		if got := cal.Days[day-1].Balance.Cents; got != want {
			t.Fatalf("day %d balance=%d want %d", day, got, want)
		}
	}
	// 2025-01-01 is a Wednesday
	if cal.LeadingBlanks != 2 {
		t.Fatalf("leading blanks=%d want 2", cal.LeadingBlanks)
	}
}

func TestCalendarCarriesPriorBalance(t *testing.T) {
	records := []Record{rec("bonus", Income, 50000, 2024, 12, 20)}
	cal := BuildMonthCalendar(records, jan2025(), Date{})
	if cal.PriorBalance.Cents != 50000 {
		t.Fatalf("prior balance=%d", cal.PriorBalance.Cents)
	}
	for _, d := range cal.Days {
		if d.Balance.Cents != 50000 || d.HasMovements() {
			t.Fatalf("day %d: balance=%d movements=%v", d.Day, d.Balance.Cents, d.HasMovements())
		}
	}
}

func TestCalendarEmptyMonthIsZero(t *testing.T) {
	cal := BuildMonthCalendar(nil, jan2025(), Date{})
	for _, d := range cal.Days {
		if d.Balance.Cents != 0 || d.Income.Cents != 0 || d.Expense.Cents != 0 {
			t.Fatalf("day %d not zero: %+v", d.Day, d)
		}
	}
	if BuildLedger(nil).Total.Cents != 0 {
		t.Fatalf("empty ledger total not zero")
	}
}

func TestCalendarSameDayIncomeAndExpense(t *testing.T) {
	records := []Record{
		rec("in", Income, 2000, 2025, 1, 15),
		rec("out", Expense, 500, 2025, 1, 15),
	}
	cal := BuildMonthCalendar(records, jan2025(), Date{})
	d := cal.Days[14]
	if d.Income.Cents != 2000 || d.Expense.Cents != 500 {
		t.Fatalf("sums netted: income=%d expense=%d", d.Income.Cents, d.Expense.Cents)
	}
	if d.Balance.Cents != 1500 {
		t.Fatalf("balance=%d want 1500", d.Balance.Cents)
	}
	if len(d.Records) != 2 || d.Records[0].ID != "in" {
		t.Fatalf("unexpected day records %+v", d.Records)
	}
}

func TestCalendarMonthLengths(t *testing.T) {
	cases := []struct {
		ym     YearMonth
		days   int
		blanks int
	}{
		{YearMonth{2024, time.February}, 29, 3}, // Thu
		{YearMonth{2025, time.February}, 28, 5}, // Sat
		{YearMonth{1900, time.February}, 28, 3}, // Thu, not a leap year
		{YearMonth{2000, time.February}, 29, 1}, // Tue
		{YearMonth{2025, time.June}, 30, 6},     // Sun
		{YearMonth{2025, time.September}, 30, 0},
	}
	for _, tc := range cases {
		cal := BuildMonthCalendar(nil, tc.ym, Date{})
		if len(cal.Days) != tc.days {
			t.Fatalf("%s: days=%d want %d", tc.ym, len(cal.Days), tc.days)
		}
		if cal.LeadingBlanks != tc.blanks {
			t.Fatalf("%s: blanks=%d want %d", tc.ym, cal.LeadingBlanks, tc.blanks)
		}
	}
}

func TestCalendarMatchesLedger(t *testing.T) {
	records := []Record{
		rec("a", Income, 1000, 2024, 11, 3),
		rec("b", Expense, 300, 2024, 12, 31),
		rec("c", Income, 700, 2025, 1, 1),
		rec("d", Expense, 100, 2025, 1, 31),
	}
	var before []Record
	for _, r := range records {
		if r.Date.Before(jan2025().First()) {
			before = append(before, r)
		}
	}
	cal := BuildMonthCalendar(records, jan2025(), Date{})
	if cal.PriorBalance != BuildLedger(before).Total {
		t.Fatalf("prior %v != ledger over earlier records %v", cal.PriorBalance, BuildLedger(before).Total)
	}
	if cal.ClosingBalance() != BuildLedger(records).Total {
		t.Fatalf("closing %v != ledger total %v", cal.ClosingBalance(), BuildLedger(records).Total)
	}
	if !reflect.DeepEqual(cal, BuildMonthCalendar(records, jan2025(), Date{})) {
		t.Fatalf("recomputation is not idempotent")
	}
}

func TestCalendarNonSequentialNavigation(t *testing.T) {
	records := []Record{
		rec("a", Income, 1000, 2023, 5, 3),
		rec("b", Expense, 300, 2025, 7, 10),
	}
	far := jan2025().AddMonths(30) // 2027-07
	direct := BuildMonthCalendar(records, far, Date{})
	if direct.PriorBalance.Cents != 700 {
		t.Fatalf("prior after jump=%d want 700", direct.PriorBalance.Cents)
	}
	back := BuildMonthCalendar(records, far.AddMonths(-50), Date{}) // 2023-05
	if back.PriorBalance.Cents != 0 || back.Days[2].Balance.Cents != 1000 {
		t.Fatalf("unexpected back-navigation result: prior=%d day3=%d", back.PriorBalance.Cents, back.Days[2].Balance.Cents)
	}
}

func TestCalendarTodayMarker(t *testing.T) {
	cal := BuildMonthCalendar(nil, jan2025(), NewDate(2025, 1, 17))
	for _, d := range cal.Days {
		if d.IsToday != (d.Day == 17) {
			t.Fatalf("day %d IsToday=%v", d.Day, d.IsToday)
		}
	}
}

func TestYearMonth(t *testing.T) {
	ym := jan2025()
	if got := ym.AddMonths(-1); got != (YearMonth{2024, time.December}) {
		t.Fatalf("AddMonths(-1)=%v", got)
	}
	if got := ym.AddMonths(13); got != (YearMonth{2026, time.February}) {
		t.Fatalf("AddMonths(13)=%v", got)
	}
	parsed, err := ParseYearMonth("2026-02")
	if err != nil || parsed != (YearMonth{2026, time.February}) {
		t.Fatalf("ParseYearMonth: %v %v", parsed, err)
	}
	for _, bad := range []string{"2026", "2026-13", "x-01", ""} {
		if _, err := ParseYearMonth(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
	if parsed.String() != "2026-02" {
		t.Fatalf("String()=%q", parsed.String())
	}
}
