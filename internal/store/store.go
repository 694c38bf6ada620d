// Package store defines the persistence ports for loans and payments.
package store

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"

	"creditledger/internal/core"
)

var (
	ErrLoanNotFound    = errors.New("loan not found")
	ErrPaymentNotFound = errors.New("payment not found")
)

// Ports for outbound adapters. Every read and write is scoped to the
// owning user.
type (
	LoanStore interface {
		// InsertLoan stores l, assigning its ID and timestamps, and returns
		// the stored record.
		InsertLoan(ctx context.Context, l core.Loan) (core.Loan, error)
		// ListLoans returns the user's loans, newest first.
		ListLoans(ctx context.Context, userID string) ([]core.Loan, error)
		// GetLoan returns ErrLoanNotFound when the loan does not exist or
		// belongs to another user.
		GetLoan(ctx context.Context, userID, loanID string) (core.Loan, error)
	}

	PaymentStore interface {
		// InsertPayment stores p, assigning its ID and creation time.
		InsertPayment(ctx context.Context, p core.Payment) (core.Payment, error)
		// ListPayments returns the user's payments by payment date, latest
		// first.
		ListPayments(ctx context.Context, userID string) ([]core.Payment, error)
	}

	LedgerStore interface {
		LoanStore
		PaymentStore
	}
)

// NewID returns a new lexically sortable record id.
func NewID() string {
	return ulid.Make().String()
}
