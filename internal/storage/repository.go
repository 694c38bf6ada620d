// Package storage is the SQLite implementation of the ledger and user
// stores, plus the bookkeeping the export worker needs.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"creditledger/internal/auth"
	"creditledger/internal/core"
	"creditledger/internal/store"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so TEXT timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Export kinds as reported by GetPendingExports.
const (
	KindLoan    = "loan"
	KindPayment = "payment"
)

const (
	syncStatusPending = "pending"
	syncStatusSynced  = "synced"
	syncStatusError   = "error"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

var (
	_ store.LedgerStore = (*SQLiteRepository)(nil)
	_ auth.UserStore    = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewWithDB(db), nil
}

// NewWithDB wraps an open database without running migrations.
func NewWithDB(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) InsertLoan(ctx context.Context, l core.Loan) (core.Loan, error) {
	if l.ID == "" {
		l.ID = store.NewID()
	}
	now := formatTime(r.now())

	row, err := r.queries.CreateLoan(ctx, CreateLoanParams{
		ID:            l.ID,
		UserID:        l.UserID,
		Nickname:      l.Nickname,
		BankName:      l.BankName,
		InterestRate:  l.InterestRate.String(),
		TotalMonths:   int64(l.TotalMonths),
		TotalAmount:   l.TotalAmount.String(),
		ProcessingFee: l.ProcessingFee.String(),
		PaymentDay:    int64(l.PaymentDay),
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return core.Loan{}, fmt.Errorf("create loan: %w", err)
	}

	slog.InfoContext(ctx, "Loan saved to SQLite",
		"component", "storage",
		"id", row.ID,
		"user_id", row.UserID)

	return loanFromRow(row)
}

func (r *SQLiteRepository) ListLoans(ctx context.Context, userID string) ([]core.Loan, error) {
	rows, err := r.queries.ListLoansByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}

	loans := make([]core.Loan, 0, len(rows))
	for _, row := range rows {
		l, err := loanFromRow(row)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, nil
}

func (r *SQLiteRepository) GetLoan(ctx context.Context, userID, loanID string) (core.Loan, error) {
	row, err := r.queries.GetLoanForUser(ctx, GetLoanForUserParams{UserID: userID, ID: loanID})
	if errors.Is(err, sql.ErrNoRows) {
		return core.Loan{}, store.ErrLoanNotFound
	}
	if err != nil {
		return core.Loan{}, fmt.Errorf("get loan: %w", err)
	}
	return loanFromRow(row)
}

// GetLoanByID returns a loan regardless of owner. Used by the export worker.
func (r *SQLiteRepository) GetLoanByID(ctx context.Context, id string) (core.Loan, error) {
	row, err := r.queries.GetLoan(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Loan{}, store.ErrLoanNotFound
	}
	if err != nil {
		return core.Loan{}, fmt.Errorf("get loan %s: %w", id, err)
	}
	return loanFromRow(row)
}

func (r *SQLiteRepository) InsertPayment(ctx context.Context, p core.Payment) (core.Payment, error) {
	if _, err := r.GetLoan(ctx, p.UserID, p.LoanID); err != nil {
		return core.Payment{}, err
	}
	if p.ID == "" {
		p.ID = store.NewID()
	}

	row, err := r.queries.CreatePayment(ctx, CreatePaymentParams{
		ID:          p.ID,
		LoanID:      p.LoanID,
		UserID:      p.UserID,
		Amount:      p.Amount.String(),
		PaymentDate: p.PaymentDate.String(),
		DueDate:     p.DueDate.String(),
		IsLate:      p.IsLate,
		Notes:       p.Notes,
		CreatedAt:   formatTime(r.now()),
	})
	if err != nil {
		return core.Payment{}, fmt.Errorf("create payment: %w", err)
	}

	slog.InfoContext(ctx, "Payment saved to SQLite",
		"component", "storage",
		"id", row.ID,
		"loan_id", row.LoanID)

	return paymentFromRow(row)
}

func (r *SQLiteRepository) ListPayments(ctx context.Context, userID string) ([]core.Payment, error) {
	rows, err := r.queries.ListPaymentsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	payments := make([]core.Payment, 0, len(rows))
	for _, row := range rows {
		p, err := paymentFromRow(row)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, nil
}

// GetPaymentByID returns a payment regardless of owner. Used by the export worker.
func (r *SQLiteRepository) GetPaymentByID(ctx context.Context, id string) (core.Payment, error) {
	row, err := r.queries.GetPayment(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Payment{}, store.ErrPaymentNotFound
	}
	if err != nil {
		return core.Payment{}, fmt.Errorf("get payment %s: %w", id, err)
	}
	return paymentFromRow(row)
}

// GetPendingExports returns up to limit unexported records whose retry
// delay has passed, oldest first.
func (r *SQLiteRepository) GetPendingExports(ctx context.Context, limit int) ([]PendingExport, error) {
	rows, err := r.queries.GetPendingExports(ctx, GetPendingExportsParams{
		Now:   formatTime(r.now()),
		Limit: int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("get pending exports: %w", err)
	}
	return rows, nil
}

// MarkExported records a successful export of the given record.
func (r *SQLiteRepository) MarkExported(ctx context.Context, kind, id string) error {
	return r.markSync(ctx, kind, id, MarkSyncStatusParams{
		SyncStatus: syncStatusSynced,
		SyncedAt:   sql.NullString{String: formatTime(r.now()), Valid: true},
		ID:         id,
	})
}

// RetryPolicy bounds the export attempts made for one record. The delay
// before a retry doubles from Backoff with every failure.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

const maxRetryDelay = time.Hour

// Delay is the wait after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.Backoff
	for i := 1; i < attempt && d < maxRetryDelay; i++ {
		d *= 2
	}
	return min(d, maxRetryDelay)
}

// ExportAttempt describes a record after a failed export.
type ExportAttempt struct {
	Attempts int
	// Exhausted is set once the record has used up its attempts; it then
	// stays out of the pending set until RetryFailedExports.
	Exhausted     bool
	NextAttemptAt time.Time
}

const maxSyncErrorLength = 500

// RecordExportFailure counts a failed export of the given record and
// schedules the next attempt, or parks the record once policy's attempts
// are used up.
func (r *SQLiteRepository) RecordExportFailure(ctx context.Context, kind, id string, cause error, policy RetryPolicy) (ExportAttempt, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ExportAttempt{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	var (
		attempts int64
		record   func(context.Context, RecordSyncFailureParams) error
		notFound error
	)
	switch kind {
	case KindLoan:
		attempts, err = q.GetLoanSyncAttempts(ctx, id)
		record, notFound = q.RecordLoanSyncFailure, store.ErrLoanNotFound
	case KindPayment:
		attempts, err = q.GetPaymentSyncAttempts(ctx, id)
		record, notFound = q.RecordPaymentSyncFailure, store.ErrPaymentNotFound
	default:
		return ExportAttempt{}, fmt.Errorf("unknown export kind %q", kind)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ExportAttempt{}, notFound
	}
	if err != nil {
		return ExportAttempt{}, fmt.Errorf("get %s %s sync attempts: %w", kind, id, err)
	}

	attempt := ExportAttempt{Attempts: int(attempts) + 1}
	arg := RecordSyncFailureParams{
		SyncStatus:   syncStatusPending,
		SyncAttempts: int64(attempt.Attempts),
		ID:           id,
	}
	if cause != nil {
		msg := cause.Error()
		if len(msg) > maxSyncErrorLength {
			msg = msg[:maxSyncErrorLength]
		}
		arg.SyncError = sql.NullString{String: msg, Valid: true}
	}
	if attempt.Attempts >= policy.MaxAttempts {
		attempt.Exhausted = true
		arg.SyncStatus = syncStatusError
	} else {
		attempt.NextAttemptAt = r.now().Add(policy.Delay(attempt.Attempts))
		arg.NextSyncAt = sql.NullString{String: formatTime(attempt.NextAttemptAt), Valid: true}
	}

	if err := record(ctx, arg); err != nil {
		return ExportAttempt{}, fmt.Errorf("record %s %s sync failure: %w", kind, id, err)
	}
	if err := tx.Commit(); err != nil {
		return ExportAttempt{}, fmt.Errorf("commit sync failure: %w", err)
	}
	return attempt, nil
}

// RetryFailedExports puts every record that ran out of attempts back into
// the pending set with a fresh budget.
func (r *SQLiteRepository) RetryFailedExports(ctx context.Context) (int64, error) {
	loans, err := r.queries.RetryFailedLoanSyncs(ctx)
	if err != nil {
		return 0, fmt.Errorf("retry failed loan exports: %w", err)
	}
	payments, err := r.queries.RetryFailedPaymentSyncs(ctx)
	if err != nil {
		return loans, fmt.Errorf("retry failed payment exports: %w", err)
	}
	return loans + payments, nil
}

func (r *SQLiteRepository) markSync(ctx context.Context, kind, id string, arg MarkSyncStatusParams) error {
	var err error
	switch kind {
	case KindLoan:
		err = r.queries.MarkLoanSyncStatus(ctx, arg)
	case KindPayment:
		err = r.queries.MarkPaymentSyncStatus(ctx, arg)
	default:
		return fmt.Errorf("unknown export kind %q", kind)
	}
	if err != nil {
		return fmt.Errorf("mark %s %s %s: %w", kind, id, arg.SyncStatus, err)
	}
	return nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u auth.UserRecord) error {
	err := r.queries.CreateUser(ctx, CreateUserParams{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Provider:     u.Provider,
		PasswordHash: u.PasswordHash,
		CreatedAt:    formatTime(u.CreatedAt),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrUserExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (auth.UserRecord, error) {
	row, err := r.queries.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.UserRecord{}, auth.ErrUserNotFound
	}
	if err != nil {
		return auth.UserRecord{}, fmt.Errorf("get user by email: %w", err)
	}
	return userFromRow(row)
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id string) (auth.UserRecord, error) {
	row, err := r.queries.GetUserByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.UserRecord{}, auth.ErrUserNotFound
	}
	if err != nil {
		return auth.UserRecord{}, fmt.Errorf("get user by id: %w", err)
	}
	return userFromRow(row)
}

func (r *SQLiteRepository) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	n, err := r.queries.UpdatePasswordHash(ctx, UpdatePasswordHashParams{PasswordHash: hash, ID: userID})
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if n == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, s auth.SessionRecord) error {
	err := r.queries.CreateSession(ctx, CreateSessionParams{
		ID:        s.ID,
		UserID:    s.UserID,
		CreatedAt: formatTime(s.CreatedAt),
		ExpiresAt: formatTime(s.ExpiresAt),
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (auth.SessionRecord, error) {
	row, err := r.queries.GetSession(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.SessionRecord{}, auth.ErrSessionNotFound
	}
	if err != nil {
		return auth.SessionRecord{}, fmt.Errorf("get session: %w", err)
	}

	rec := auth.SessionRecord{ID: row.ID, UserID: row.UserID}
	if rec.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return auth.SessionRecord{}, err
	}
	if rec.ExpiresAt, err = parseTime(row.ExpiresAt); err != nil {
		return auth.SessionRecord{}, err
	}
	if rec.RevokedAt, err = parseNullTime(row.RevokedAt); err != nil {
		return auth.SessionRecord{}, err
	}
	return rec, nil
}

func (r *SQLiteRepository) RevokeSession(ctx context.Context, id string, at time.Time) error {
	n, err := r.queries.RevokeSession(ctx, RevokeSessionParams{RevokedAt: formatTime(at), ID: id})
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if n == 0 {
		return auth.ErrSessionNotFound
	}
	return nil
}

func (r *SQLiteRepository) CreateRecoveryToken(ctx context.Context, t auth.RecoveryToken) error {
	err := r.queries.CreateRecoveryToken(ctx, CreateRecoveryTokenParams{
		Token:     t.Token,
		UserID:    t.UserID,
		CreatedAt: formatTime(t.CreatedAt),
		ExpiresAt: formatTime(t.ExpiresAt),
	})
	if err != nil {
		return fmt.Errorf("create recovery token: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ConsumeRecoveryToken(ctx context.Context, token string, now time.Time) (auth.RecoveryToken, error) {
	row, err := r.queries.ConsumeRecoveryToken(ctx, ConsumeRecoveryTokenParams{Now: formatTime(now), Token: token})
	if errors.Is(err, sql.ErrNoRows) {
		return auth.RecoveryToken{}, auth.ErrTokenNotFound
	}
	if err != nil {
		return auth.RecoveryToken{}, fmt.Errorf("consume recovery token: %w", err)
	}

	t := auth.RecoveryToken{Token: row.Token, UserID: row.UserID}
	if t.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return auth.RecoveryToken{}, err
	}
	if t.ExpiresAt, err = parseTime(row.ExpiresAt); err != nil {
		return auth.RecoveryToken{}, err
	}
	if t.UsedAt, err = parseNullTime(row.UsedAt); err != nil {
		return auth.RecoveryToken{}, err
	}
	return t, nil
}

func loanFromRow(row Loan) (core.Loan, error) {
	l := core.Loan{
		ID:          row.ID,
		UserID:      row.UserID,
		Nickname:    row.Nickname,
		BankName:    row.BankName,
		TotalMonths: int(row.TotalMonths),
		PaymentDay:  int(row.PaymentDay),
	}
	var err error
	if l.InterestRate, err = decimal.NewFromString(row.InterestRate); err != nil {
		return core.Loan{}, fmt.Errorf("loan %s interest_rate: %w", row.ID, err)
	}
	if l.TotalAmount, err = decimal.NewFromString(row.TotalAmount); err != nil {
		return core.Loan{}, fmt.Errorf("loan %s total_amount: %w", row.ID, err)
	}
	if l.ProcessingFee, err = decimal.NewFromString(row.ProcessingFee); err != nil {
		return core.Loan{}, fmt.Errorf("loan %s processing_fee: %w", row.ID, err)
	}
	if l.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return core.Loan{}, err
	}
	if l.UpdatedAt, err = parseTime(row.UpdatedAt); err != nil {
		return core.Loan{}, err
	}
	return l, nil
}

func paymentFromRow(row Payment) (core.Payment, error) {
	p := core.Payment{
		ID:     row.ID,
		LoanID: row.LoanID,
		UserID: row.UserID,
		IsLate: row.IsLate,
		Notes:  row.Notes,
	}
	var err error
	if p.Amount, err = decimal.NewFromString(row.Amount); err != nil {
		return core.Payment{}, fmt.Errorf("payment %s amount: %w", row.ID, err)
	}
	if p.PaymentDate, err = core.ParseDate(row.PaymentDate); err != nil {
		return core.Payment{}, fmt.Errorf("payment %s payment_date: %w", row.ID, err)
	}
	if p.DueDate, err = core.ParseDate(row.DueDate); err != nil {
		return core.Payment{}, fmt.Errorf("payment %s due_date: %w", row.ID, err)
	}
	if p.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return core.Payment{}, err
	}
	return p, nil
}

func userFromRow(row User) (auth.UserRecord, error) {
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return auth.UserRecord{}, err
	}
	return auth.UserRecord{
		User: auth.User{
			ID:        row.ID,
			Email:     row.Email,
			FirstName: row.FirstName,
			LastName:  row.LastName,
			Provider:  row.Provider,
			CreatedAt: created,
		},
		PasswordHash: row.PasswordHash,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
