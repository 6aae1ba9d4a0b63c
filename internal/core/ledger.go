package core

import "sort"

// LedgerEntry is a record with the cumulative balance through it.
type LedgerEntry struct {
	Record
	Balance Money
}

// Ledger is the chronological view of a record set.
type Ledger struct {
	Entries []LedgerEntry
	Total   Money
}

// SortByDate returns a copy of records ordered by date ascending. Records on
// the same date keep their input order.
func SortByDate(records []Record) []Record {
	sorted := append([]Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}

// SignedSum adds income and subtracts expense over records.
func SignedSum(records []Record) Money {
	var total Money
	for _, r := range records {
		total = total.Add(r.Signed())
	}
	return total
}

// BuildLedger sorts records by date and attaches the running balance to each.
// Total is the balance after the last entry, zero for an empty set.
func BuildLedger(records []Record) Ledger {
	sorted := SortByDate(records)
	entries := make([]LedgerEntry, 0, len(sorted))
	var balance Money
	for _, r := range sorted {
		balance = balance.Add(r.Signed())
		entries = append(entries, LedgerEntry{Record: r, Balance: balance})
	}
	return Ledger{Entries: entries, Total: balance}
}
