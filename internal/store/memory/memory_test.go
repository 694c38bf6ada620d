package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"creditledger/internal/auth"
	"creditledger/internal/core"
	"creditledger/internal/store"
)

func steppingClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestLoansScopedAndNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.now = steppingClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	first, _ := s.InsertLoan(ctx, core.Loan{UserID: "u1", Nickname: "first", TotalAmount: decimal.NewFromInt(1)})
	second, _ := s.InsertLoan(ctx, core.Loan{UserID: "u1", Nickname: "second", TotalAmount: decimal.NewFromInt(1)})
	s.InsertLoan(ctx, core.Loan{UserID: "u2", Nickname: "other"})

	if first.ID == "" || first.CreatedAt.IsZero() {
		t.Fatalf("insert should assign id and timestamps: %+v", first)
	}

	loans, err := s.ListLoans(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(loans) != 2 || loans[0].ID != second.ID || loans[1].ID != first.ID {
		t.Fatalf("unexpected order: %+v", loans)
	}

	if _, err := s.GetLoan(ctx, "u2", first.ID); !errors.Is(err, store.ErrLoanNotFound) {
		t.Fatalf("other user's loan must be not found, got %v", err)
	}
}

func TestPaymentsOrderedByPaymentDate(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.now = steppingClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	loan, _ := s.InsertLoan(ctx, core.Loan{UserID: "u1"})
	jan, _ := s.InsertPayment(ctx, core.Payment{UserID: "u1", LoanID: loan.ID, PaymentDate: core.NewDate(2025, 1, 15)})
	mar, _ := s.InsertPayment(ctx, core.Payment{UserID: "u1", LoanID: loan.ID, PaymentDate: core.NewDate(2025, 3, 15)})
	feb, _ := s.InsertPayment(ctx, core.Payment{UserID: "u1", LoanID: loan.ID, PaymentDate: core.NewDate(2025, 2, 15)})

	payments, _ := s.ListPayments(ctx, "u1")
	if len(payments) != 3 || payments[0].ID != mar.ID || payments[1].ID != feb.ID || payments[2].ID != jan.ID {
		t.Fatalf("unexpected order: %+v", payments)
	}

	if _, err := s.InsertPayment(ctx, core.Payment{UserID: "u2", LoanID: loan.ID}); !errors.Is(err, store.ErrLoanNotFound) {
		t.Fatalf("payment against another user's loan must fail, got %v", err)
	}
}

func TestUserStore(t *testing.T) {
	ctx := context.Background()
	s := New()

	u := auth.UserRecord{User: auth.User{ID: "u1", Email: "a@example.com"}, PasswordHash: "h"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateUser(ctx, auth.UserRecord{User: auth.User{ID: "u2", Email: "A@example.com"}}); !errors.Is(err, auth.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if _, err := s.GetUserByEmail(ctx, "missing@example.com"); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := s.UpdatePasswordHash(ctx, "u1", "h2"); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetUserByID(ctx, "u1")
	if got.PasswordHash != "h2" {
		t.Fatalf("hash not updated: %q", got.PasswordHash)
	}
}

func TestRecoveryTokenSingleUse(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s.CreateRecoveryToken(ctx, auth.RecoveryToken{Token: "t", UserID: "u1", ExpiresAt: now.Add(time.Hour)})

	if _, err := s.ConsumeRecoveryToken(ctx, "t", now.Add(2*time.Hour)); !errors.Is(err, auth.ErrTokenNotFound) {
		t.Fatalf("expired token must be rejected, got %v", err)
	}
	if _, err := s.ConsumeRecoveryToken(ctx, "t", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.ConsumeRecoveryToken(ctx, "t", now); !errors.Is(err, auth.ErrTokenNotFound) {
		t.Fatalf("used token must be rejected, got %v", err)
	}
}
