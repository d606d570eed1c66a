// Package sheets keeps the ledger as rows of a Google Sheets tab, one
// transaction per row.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fisse/internal/core"
	"fisse/internal/ledger"
)

// Ensure interface conformance
var (
	_ ledger.Ledger        = (*Client)(nil)
	_ ledger.HistorySource = (*Client)(nil)
)

// Config selects the spreadsheet and how to authenticate against it.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

// values is the slice of the Sheets values API the ledger needs.
type values interface {
	get(ctx context.Context, rng string) ([][]any, error)
	append(ctx context.Context, rng string, rows [][]any) error
	clear(ctx context.Context, rng string) error
}

type Client struct {
	api   values
	sheet string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheet := strings.TrimSpace(cfg.SheetName)
	if sheet == "" {
		sheet = "Transactions"
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{
		api:   &serviceValues{svc: svc, spreadsheetID: cfg.SpreadsheetID},
		sheet: sheet,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	credentialsFile := strings.TrimSpace(cfg.ServiceAccountFile)
	if cfg.ServiceAccountJSON == "" && credentialsFile == "" {
		credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case cfg.ServiceAccountJSON != "":
		credentialsJSON = []byte(cfg.ServiceAccountJSON)
	case credentialsFile != "":
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	slog.DebugContext(ctx, "Creating Google Sheets service",
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

type serviceValues struct {
	svc           *gsheet.Service
	spreadsheetID string
}

func (s *serviceValues) get(ctx context.Context, rng string) ([][]any, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s *serviceValues) append(ctx context.Context, rng string, rows [][]any) error {
	vr := &gsheet.ValueRange{Values: rows}
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, rng, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return err
}

func (s *serviceValues) clear(ctx context.Context, rng string) error {
	_, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	return err
}

func (c *Client) fullRange() string {
	return fmt.Sprintf("%s!A:%s", c.sheet, lastColumn)
}

func (c *Client) Create(ctx context.Context, tx core.LedgerTransaction) (string, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if err := c.api.append(ctx, c.fullRange(), [][]any{formatRow(tx)}); err != nil {
		return "", fmt.Errorf("append to %s: %w", c.sheet, err)
	}
	return tx.ID, nil
}

// Delete blanks the transaction's row; empty rows are skipped when reading.
func (c *Client) Delete(ctx context.Context, id string) error {
	rows, err := c.api.get(ctx, c.fullRange())
	if err != nil {
		return fmt.Errorf("read %s: %w", c.sheet, err)
	}
	for i, row := range rows {
		cols := toStrings(row)
		if len(cols) == 0 || cols[colID] != id {
			continue
		}
		rowNum := i + 1
		rng := fmt.Sprintf("%s!A%d:%s%d", c.sheet, rowNum, lastColumn, rowNum)
		if err := c.api.clear(ctx, rng); err != nil {
			return fmt.Errorf("clear %s: %w", rng, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ledger.ErrTransactionNotFound, id)
}

func (c *Client) readAll(ctx context.Context) ([]core.LedgerTransaction, error) {
	rows, err := c.api.get(ctx, c.fullRange())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.sheet, err)
	}
	out := make([]core.LedgerTransaction, 0, len(rows))
	for i, row := range rows {
		tx, ok := parseRow(toStrings(row))
		if !ok {
			if i > 0 {
				slog.DebugContext(ctx, "Skipping unparsable ledger row", "sheet", c.sheet, "row", i+1)
			}
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (c *Client) FindByItem(ctx context.Context, period core.PeriodKey, itemID string) (*core.LedgerTransaction, error) {
	all, err := c.readAll(ctx)
	if err != nil {
		return nil, err
	}
	// rows are append-only, so the first match is the oldest
	for _, tx := range all {
		if tx.ItemID == itemID && tx.Period == period {
			found := tx
			return &found, nil
		}
	}
	return nil, nil
}

func (c *Client) ListLegacy(ctx context.Context) ([]core.LedgerTransaction, error) {
	all, err := c.readAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.LedgerTransaction, 0, len(all))
	for _, tx := range all {
		if tx.ItemID == "" {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}
