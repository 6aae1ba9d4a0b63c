package google

import (
	"strings"

	"finanzas/internal/core"
)

// Sheet titles are limited to 100 characters.
const maxTabTitle = 100

var ledgerHeader = []any{"Fecha", "Tipo", "Descripción", "Monto", "Saldo"}

// LedgerRows renders a ledger as sheet rows: a header, one row per entry in
// ledger order, and a closing total row. Amounts are decimal numbers with the
// record's sign applied.
func LedgerRows(ledger core.Ledger) [][]any {
	rows := make([][]any, 0, len(ledger.Entries)+2)
	rows = append(rows, ledgerHeader)
	for _, e := range ledger.Entries {
		rows = append(rows, []any{
			e.Date.Display(),
			typeLabel(e.Type),
			e.Description,
			units(e.Signed()),
			units(e.Balance),
		})
	}
	rows = append(rows, []any{"", "", "Total", "", units(ledger.Total)})
	return rows
}

func typeLabel(t core.RecordType) string {
	if t == core.Income {
		return "Ingreso"
	}
	return "Gasto"
}

func units(m core.Money) float64 {
	return float64(m.Cents) / 100
}

// TabName builds a valid sheet title for a user.
func TabName(prefix, userID string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\', '\'':
			return '_'
		}
		return r
	}, strings.TrimSpace(prefix+" "+userID))
	if r := []rune(clean); len(r) > maxTabTitle {
		clean = string(r[:maxTabTitle])
	}
	return clean
}

// quoteTab quotes a title for A1 notation.
func quoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}
