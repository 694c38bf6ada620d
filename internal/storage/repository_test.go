package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditledger/internal/auth"
	"creditledger/internal/core"
	"creditledger/internal/store"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}
	return repo
}

func sampleLoan(userID, nickname string) core.Loan {
	return core.Loan{
		UserID:        userID,
		Nickname:      nickname,
		BankName:      "BDO",
		InterestRate:  decimal.RequireFromString("12.5"),
		TotalMonths:   12,
		TotalAmount:   decimal.RequireFromString("120000.00"),
		ProcessingFee: decimal.RequireFromString("1500"),
		PaymentDay:    15,
	}
}

func TestSQLiteRepository_Loans(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	first, err := repo.InsertLoan(ctx, sampleLoan("u1", "Car"))
	require.NoError(t, err)
	second, err := repo.InsertLoan(ctx, sampleLoan("u1", "House"))
	require.NoError(t, err)
	_, err = repo.InsertLoan(ctx, sampleLoan("u2", "Other"))
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.True(t, first.InterestRate.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, first.TotalAmount.Equal(decimal.NewFromInt(120000)))

	loans, err := repo.ListLoans(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, second.ID, loans[0].ID, "newest first")
	assert.Equal(t, first.ID, loans[1].ID)

	got, err := repo.GetLoan(ctx, "u1", first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Car", got.Nickname)
	assert.Equal(t, first.CreatedAt, got.CreatedAt)

	_, err = repo.GetLoan(ctx, "u2", first.ID)
	assert.ErrorIs(t, err, store.ErrLoanNotFound)
}

func TestSQLiteRepository_Payments(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	loan, err := repo.InsertLoan(ctx, sampleLoan("u1", "Car"))
	require.NoError(t, err)

	newPayment := func(date core.Date) core.Payment {
		return core.Payment{
			LoanID:      loan.ID,
			UserID:      "u1",
			Amount:      decimal.RequireFromString("10661.85"),
			PaymentDate: date,
			DueDate:     core.NewDate(date.Year(), int(date.Month()), 15),
			IsLate:      date.Day() > 15,
			Notes:       "auto-debit",
		}
	}

	jan, err := repo.InsertPayment(ctx, newPayment(core.NewDate(2025, 1, 20)))
	require.NoError(t, err)
	mar, err := repo.InsertPayment(ctx, newPayment(core.NewDate(2025, 3, 10)))
	require.NoError(t, err)

	payments, err := repo.ListPayments(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, mar.ID, payments[0].ID, "latest payment date first")
	assert.Equal(t, jan.ID, payments[1].ID)
	assert.True(t, payments[1].IsLate)
	assert.Equal(t, "2025-01-20", payments[1].PaymentDate.String())
	assert.Equal(t, "auto-debit", payments[1].Notes)

	other := newPayment(core.NewDate(2025, 2, 1))
	other.UserID = "u2"
	_, err = repo.InsertPayment(ctx, other)
	assert.ErrorIs(t, err, store.ErrLoanNotFound)

	empty, err := repo.ListPayments(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLiteRepository_PendingExports(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	loan, err := repo.InsertLoan(ctx, sampleLoan("u1", "Car"))
	require.NoError(t, err)
	payment, err := repo.InsertPayment(ctx, core.Payment{
		LoanID: loan.ID, UserID: "u1", Amount: decimal.NewFromInt(100),
		PaymentDate: core.NewDate(2025, 1, 1), DueDate: core.NewDate(2025, 1, 15),
	})
	require.NoError(t, err)

	pending, err := repo.GetPendingExports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, KindLoan, pending[0].Kind)
	assert.Equal(t, KindPayment, pending[1].Kind)

	require.NoError(t, repo.MarkExported(ctx, KindLoan, loan.ID))
	attempt, err := repo.RecordExportFailure(ctx, KindPayment, payment.ID, errors.New("quota"), RetryPolicy{MaxAttempts: 1, Backoff: time.Minute})
	require.NoError(t, err)
	assert.True(t, attempt.Exhausted)
	assert.Error(t, repo.MarkExported(ctx, "bogus", "x"))

	pending, err = repo.GetPendingExports(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	byID, err := repo.GetPaymentByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.ID, byID.LoanID)
	_, err = repo.GetLoanByID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrLoanNotFound)
}

func TestSQLiteRepository_Users(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	created := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)

	u := auth.UserRecord{
		User:         auth.User{ID: "u1", Email: "ana@example.com", FirstName: "Ana", Provider: "email", CreatedAt: created},
		PasswordHash: "hash",
	}
	require.NoError(t, repo.CreateUser(ctx, u))

	dup := u
	dup.ID = "u2"
	dup.Email = "ANA@example.com"
	assert.ErrorIs(t, repo.CreateUser(ctx, dup), auth.ErrUserExists)

	got, err := repo.GetUserByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, u, got)

	require.NoError(t, repo.UpdatePasswordHash(ctx, "u1", "hash2"))
	got, err = repo.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "hash2", got.PasswordHash)

	assert.ErrorIs(t, repo.UpdatePasswordHash(ctx, "missing", "x"), auth.ErrUserNotFound)
	_, err = repo.GetUserByEmail(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestSQLiteRepository_SessionsAndTokens(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	now := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateUser(ctx, auth.UserRecord{
		User: auth.User{ID: "u1", Email: "ana@example.com", CreatedAt: now}, PasswordHash: "h",
	}))

	require.NoError(t, repo.CreateSession(ctx, auth.SessionRecord{ID: "s1", UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))
	sess, err := repo.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, sess.Active(now))

	require.NoError(t, repo.RevokeSession(ctx, "s1", now.Add(time.Minute)))
	sess, err = repo.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, sess.Active(now))
	assert.ErrorIs(t, repo.RevokeSession(ctx, "missing", now), auth.ErrSessionNotFound)

	require.NoError(t, repo.CreateRecoveryToken(ctx, auth.RecoveryToken{Token: "tok", UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))
	_, err = repo.ConsumeRecoveryToken(ctx, "tok", now.Add(2*time.Hour))
	assert.ErrorIs(t, err, auth.ErrTokenNotFound, "expired")

	tok, err := repo.ConsumeRecoveryToken(ctx, "tok", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "u1", tok.UserID)
	require.NotNil(t, tok.UsedAt)

	_, err = repo.ConsumeRecoveryToken(ctx, "tok", now.Add(time.Minute))
	assert.ErrorIs(t, err, auth.ErrTokenNotFound, "already used")
}

func TestSQLiteRepository_ExportRetries(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	loan, err := repo.InsertLoan(ctx, sampleLoan("u1", "Car"))
	require.NoError(t, err)

	clock := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return clock }
	policy := RetryPolicy{MaxAttempts: 3, Backoff: time.Minute}

	first, err := repo.RecordExportFailure(ctx, KindLoan, loan.ID, errors.New("sheets down"), policy)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Attempts)
	assert.False(t, first.Exhausted)
	assert.Equal(t, clock.Add(time.Minute), first.NextAttemptAt)

	pending, err := repo.GetPendingExports(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "record should wait out its backoff")

	clock = clock.Add(time.Minute)
	pending, err = repo.GetPendingExports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(1), pending[0].Attempts)

	second, err := repo.RecordExportFailure(ctx, KindLoan, loan.ID, errors.New("sheets down"), policy)
	require.NoError(t, err)
	assert.Equal(t, clock.Add(2*time.Minute), second.NextAttemptAt)

	third, err := repo.RecordExportFailure(ctx, KindLoan, loan.ID, errors.New("sheets down"), policy)
	require.NoError(t, err)
	assert.Equal(t, 3, third.Attempts)
	assert.True(t, third.Exhausted)

	clock = clock.Add(24 * time.Hour)
	pending, err = repo.GetPendingExports(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "exhausted record stays out of the pending set")

	n, err := repo.RetryFailedExports(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	pending, err = repo.GetPendingExports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(0), pending[0].Attempts)

	_, err = repo.RecordExportFailure(ctx, KindPayment, "missing", errors.New("x"), policy)
	assert.ErrorIs(t, err, store.ErrPaymentNotFound)
	_, err = repo.RecordExportFailure(ctx, "bogus", loan.ID, errors.New("x"), policy)
	assert.Error(t, err)
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, Backoff: time.Minute}
	assert.Equal(t, time.Minute, p.Delay(1))
	assert.Equal(t, 4*time.Minute, p.Delay(3))
	assert.Equal(t, time.Hour, p.Delay(20))
}

func TestSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.db")
	version, _, err := SchemaVersion(path)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	require.NoError(t, RunMigrations(path))
	version, dirty, err := SchemaVersion(path)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
}
