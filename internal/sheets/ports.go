// Package sheets defines the spreadsheet export port used by the worker.
package sheets

import (
	"context"

	"creditledger/internal/core"
)

// LedgerExporter appends ledger records to an external spreadsheet. Each
// call returns a reference to the written row.
type LedgerExporter interface {
	AppendLoan(ctx context.Context, l core.Loan) (rowRef string, err error)
	AppendPayment(ctx context.Context, p core.Payment) (rowRef string, err error)
}
