// Package google mirrors ledgers into a Google spreadsheet, one tab per user.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/services"
)

// Options configures the mirror client. One of ServiceAccountJSON and
// ServiceAccountFile must be set.
type Options struct {
	SpreadsheetID      string
	ServiceAccountJSON string
	ServiceAccountFile string
	// TabPrefix is prepended to the user id in tab titles (default "Ledger").
	TabPrefix string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	tabPrefix     string
	logger        *applog.Logger
}

var _ services.LedgerWriter = (*Client)(nil)

var (
	ErrNoSpreadsheetID = errors.New("missing spreadsheet id")
	// ErrNoCredentials means neither ServiceAccountJSON nor ServiceAccountFile was set.
	ErrNoCredentials = errors.New("missing service account credentials: set ServiceAccountJSON or ServiceAccountFile")
)

func New(ctx context.Context, opts Options, logger *applog.Logger) (*Client, error) {
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentSheets)

	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, ErrNoSpreadsheetID
	}
	creds, err := serviceAccountCredentials(opts)
	if err != nil {
		return nil, err
	}
	svc, err := newSheetsService(ctx, creds, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	prefix := strings.TrimSpace(opts.TabPrefix)
	if prefix == "" {
		prefix = "Ledger"
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, tabPrefix: prefix, logger: logger}, nil
}

func serviceAccountCredentials(opts Options) ([]byte, error) {
	switch {
	case strings.TrimSpace(opts.ServiceAccountJSON) != "":
		return []byte(opts.ServiceAccountJSON), nil
	case strings.TrimSpace(opts.ServiceAccountFile) != "":
		b, err := os.ReadFile(opts.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	}
	return nil, ErrNoCredentials
}

// newSheetsService initializes a Sheets service using service account credentials.
func newSheetsService(ctx context.Context, credentialsJSON []byte, logger *applog.Logger) (*gsheet.Service, error) {
	logger.DebugContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// WriteLedger replaces the user's tab with the rows of ledger.
func (c *Client) WriteLedger(ctx context.Context, userID string, ledger core.Ledger) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	tab := TabName(c.tabPrefix, userID)
	if err := c.ensureTab(ctx, tab); err != nil {
		return err
	}

	quoted := quoteTab(tab)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quoted+"!A:E", &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", tab, err)
	}

	vr := &gsheet.ValueRange{Values: LedgerRows(ledger)}
	// RAW keeps descriptions such as "=1+1" from being evaluated
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, quoted+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", tab, err)
	}

	c.logger.DebugContext(ctx, "Ledger tab written",
		"tab", tab, applog.FieldRecordCount, len(ledger.Entries))
	return nil
}

func (c *Client) ensureTab(ctx context.Context, tab string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == tab {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: tab}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", tab, err)
	}
	c.logger.InfoContext(ctx, "Created ledger tab", "tab", tab)
	return nil
}
