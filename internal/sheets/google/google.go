// Package google exports ledger records to a Google Sheets spreadsheet
// using service account credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"creditledger/internal/core"
	ports "creditledger/internal/sheets"
)

const (
	DefaultLoansSheet    = "Loans"
	DefaultPaymentsSheet = "Payments"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	loansSheet    string
	paymentsSheet string
}

var _ ports.LedgerExporter = (*Client)(nil)

// Options configures New. One of CredentialsJSON or CredentialsFile is
// required unless ClientOptions supplies authentication.
type Options struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
	LoansSheet      string
	PaymentsSheet   string
	// ClientOptions are passed to the Sheets service after the credentials.
	ClientOptions []goption.ClientOption
}

func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	clientOpts, err := credentialOptions(ctx, opts)
	if err != nil {
		return nil, err
	}
	clientOpts = append(clientOpts, opts.ClientOptions...)

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	c := &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		loansSheet:    opts.LoansSheet,
		paymentsSheet: opts.PaymentsSheet,
	}
	if c.loansSheet == "" {
		c.loansSheet = DefaultLoansSheet
	}
	if c.paymentsSheet == "" {
		c.paymentsSheet = DefaultPaymentsSheet
	}

	slog.InfoContext(ctx, "Google Sheets exporter initialized",
		"component", "sheets",
		"spreadsheet_id", spreadsheetID,
		"loans_sheet", c.loansSheet,
		"payments_sheet", c.paymentsSheet)
	return c, nil
}

func credentialOptions(ctx context.Context, opts Options) ([]goption.ClientOption, error) {
	credsJSON := strings.TrimSpace(opts.CredentialsJSON)
	credsFile := strings.TrimSpace(opts.CredentialsFile)

	var data []byte
	switch {
	case credsJSON != "":
		slog.InfoContext(ctx, "Using inline service account credentials", "component", "sheets")
		data = []byte(credsJSON)
	case credsFile != "":
		slog.InfoContext(ctx, "Reading service account credentials", "component", "sheets", "path", credsFile)
		b, err := os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		data = b
	case len(opts.ClientOptions) > 0:
		return nil, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}

	return []goption.ClientOption{
		goption.WithCredentialsJSON(data),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, nil
}

func (c *Client) AppendLoan(ctx context.Context, l core.Loan) (string, error) {
	return c.append(ctx, c.loansSheet, loanRow(l))
}

func (c *Client) AppendPayment(ctx context.Context, p core.Payment) (string, error) {
	return c.append(ctx, c.paymentsSheet, paymentRow(p))
}

func (c *Client) append(ctx context.Context, sheet string, row []any) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:%s", sheet, lastColumn(len(row)))
	vr := &gsheet.ValueRange{Values: [][]any{row}}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}

// EnsureHeaders writes the column header row to any export sheet whose
// first row is empty.
func (c *Client) EnsureHeaders(ctx context.Context) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	for _, s := range []struct {
		name   string
		header []any
	}{
		{c.loansSheet, LoanHeader},
		{c.paymentsSheet, PaymentHeader},
	} {
		first := fmt.Sprintf("%s!A1:%s1", s.name, lastColumn(len(s.header)))
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, first).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("read header of %s: %w", s.name, err)
		}
		if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
			continue
		}

		vr := &gsheet.ValueRange{Values: [][]any{s.header}}
		if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, first, vr).
			ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return fmt.Errorf("write header of %s: %w", s.name, err)
		}
		slog.InfoContext(ctx, "Wrote sheet header", "component", "sheets", "sheet", s.name)
	}
	return nil
}
