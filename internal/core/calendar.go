package core

// DayCell is one day of a month calendar.
type DayCell struct {
	Day     int
	Date    Date
	Income  Money
	Expense Money
	// Balance is the running balance at the end of the day.
	Balance Money
	Records []Record
	IsToday bool
}

// HasMovements reports whether any income or expense was recorded on the day.
func (c DayCell) HasMovements() bool {
	return c.Income.Cents > 0 || c.Expense.Cents > 0 || len(c.Records) > 0
}

// MonthCalendar is the day grid for one month.
type MonthCalendar struct {
	Month         YearMonth
	PriorBalance  Money
	LeadingBlanks int
	Days          []DayCell
}

// ClosingBalance is the balance at the end of the last day.
func (c MonthCalendar) ClosingBalance() Money {
	if len(c.Days) == 0 {
		return c.PriorBalance
	}
	return c.Days[len(c.Days)-1].Balance
}

// BuildMonthCalendar computes the calendar for ym over the full record set.
// The prior balance is always recomputed from every record dated before the
// 1st of the month, so the result does not depend on previously viewed
// months. today only drives the IsToday marker.
func BuildMonthCalendar(records []Record, ym YearMonth, today Date) MonthCalendar {
	first := ym.First()
	n := ym.Days()

	var prior Money
	byDay := make([][]Record, n+1)
	for _, r := range records {
		switch {
		case r.Date.Before(first):
			prior = prior.Add(r.Signed())
		case MonthOf(r.Date) == ym:
			d := r.Date.Day()
			byDay[d] = append(byDay[d], r)
		}
	}

	cal := MonthCalendar{
		Month:         ym,
		PriorBalance:  prior,
		LeadingBlanks: ym.LeadingBlanks(),
		Days:          make([]DayCell, 0, n),
	}
	balance := prior
	for day := 1; day <= n; day++ {
		cell := DayCell{
			Day:     day,
			Date:    NewDate(ym.Year, ym.Month, day),
			Records: byDay[day],
		}
		for _, r := range byDay[day] {
			if r.Type == Income {
				cell.Income = cell.Income.Add(r.Amount)
			} else {
				cell.Expense = cell.Expense.Add(r.Amount)
			}
		}
		balance = balance.Add(cell.Income).Sub(cell.Expense)
		cell.Balance = balance
		cell.IsToday = cell.Date.Equal(today)
		cal.Days = append(cal.Days, cell)
	}
	return cal
}
