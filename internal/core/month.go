package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// YearMonth identifies a calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing d.
func MonthOf(d Date) YearMonth {
	return YearMonth{Year: d.Year(), Month: d.Month()}
}

// ParseYearMonth parses YYYY-MM.
func ParseYearMonth(s string) (YearMonth, error) {
	y, m, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return YearMonth{}, fmt.Errorf("invalid month %q: want YYYY-MM", s)
	}
	year, err := strconv.Atoi(y)
	if err != nil {
		return YearMonth{}, fmt.Errorf("invalid year in %q: %w", s, err)
	}
	month, err := strconv.Atoi(m)
	if err != nil || month < 1 || month > 12 {
		return YearMonth{}, fmt.Errorf("invalid month in %q", s)
	}
	return YearMonth{Year: year, Month: time.Month(month)}, nil
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// First returns the first day of the month.
func (ym YearMonth) First() Date {
	return NewDate(ym.Year, ym.Month, 1)
}

// Days returns the length of the month, leap years included.
func (ym YearMonth) Days() int {
	return ym.First().AddDate(0, 1, -1).Day()
}

// AddMonths moves delta months forward (or backward when negative). There is
// no lower or upper bound.
func (ym YearMonth) AddMonths(delta int) YearMonth {
	t := time.Date(ym.Year, ym.Month+time.Month(delta), 1, 0, 0, 0, 0, time.UTC)
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// LeadingBlanks is the Monday-first weekday index of the 1st: the number of
// grid cells before it that belong to the previous month.
func (ym YearMonth) LeadingBlanks() int {
	return (int(ym.First().Weekday()) + 6) % 7
}
