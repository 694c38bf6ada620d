package storage

import (
	"context"
	"database/sql"
)

const createUser = `-- name: CreateUser :exec
INSERT INTO users (id, email, first_name, last_name, provider, password_hash, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

type CreateUserParams struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	Provider     string
	PasswordHash string
	CreatedAt    string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) error {
	_, err := q.db.ExecContext(ctx, createUser,
		arg.ID,
		arg.Email,
		arg.FirstName,
		arg.LastName,
		arg.Provider,
		arg.PasswordHash,
		arg.CreatedAt,
	)
	return err
}

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT id, email, first_name, last_name, provider, password_hash, created_at
FROM users
WHERE email = ?
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByEmail, email)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.FirstName,
		&i.LastName,
		&i.Provider,
		&i.PasswordHash,
		&i.CreatedAt,
	)
	return i, err
}

const getUserByID = `-- name: GetUserByID :one
SELECT id, email, first_name, last_name, provider, password_hash, created_at
FROM users
WHERE id = ?
`

func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByID, id)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.FirstName,
		&i.LastName,
		&i.Provider,
		&i.PasswordHash,
		&i.CreatedAt,
	)
	return i, err
}

const updatePasswordHash = `-- name: UpdatePasswordHash :execrows
UPDATE users SET password_hash = ? WHERE id = ?
`

type UpdatePasswordHashParams struct {
	PasswordHash string
	ID           string
}

func (q *Queries) UpdatePasswordHash(ctx context.Context, arg UpdatePasswordHashParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updatePasswordHash, arg.PasswordHash, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const createSession = `-- name: CreateSession :exec
INSERT INTO sessions (id, user_id, created_at, expires_at)
VALUES (?, ?, ?, ?)
`

type CreateSessionParams struct {
	ID        string
	UserID    string
	CreatedAt string
	ExpiresAt string
}

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) error {
	_, err := q.db.ExecContext(ctx, createSession,
		arg.ID,
		arg.UserID,
		arg.CreatedAt,
		arg.ExpiresAt,
	)
	return err
}

const getSession = `-- name: GetSession :one
SELECT id, user_id, created_at, expires_at, revoked_at
FROM sessions
WHERE id = ?
`

func (q *Queries) GetSession(ctx context.Context, id string) (Session, error) {
	row := q.db.QueryRowContext(ctx, getSession, id)
	var i Session
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.CreatedAt,
		&i.ExpiresAt,
		&i.RevokedAt,
	)
	return i, err
}

const revokeSession = `-- name: RevokeSession :execrows
UPDATE sessions SET revoked_at = COALESCE(revoked_at, ?) WHERE id = ?
`

type RevokeSessionParams struct {
	RevokedAt string
	ID        string
}

func (q *Queries) RevokeSession(ctx context.Context, arg RevokeSessionParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, revokeSession, arg.RevokedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const createRecoveryToken = `-- name: CreateRecoveryToken :exec
INSERT INTO recovery_tokens (token, user_id, created_at, expires_at)
VALUES (?, ?, ?, ?)
`

type CreateRecoveryTokenParams struct {
	Token     string
	UserID    string
	CreatedAt string
	ExpiresAt string
}

func (q *Queries) CreateRecoveryToken(ctx context.Context, arg CreateRecoveryTokenParams) error {
	_, err := q.db.ExecContext(ctx, createRecoveryToken,
		arg.Token,
		arg.UserID,
		arg.CreatedAt,
		arg.ExpiresAt,
	)
	return err
}

const consumeRecoveryToken = `-- name: ConsumeRecoveryToken :one
UPDATE recovery_tokens
SET used_at = ?1
WHERE token = ?2 AND used_at IS NULL AND expires_at > ?1
RETURNING token, user_id, created_at, expires_at, used_at
`

type ConsumeRecoveryTokenParams struct {
	Now   string
	Token string
}

func (q *Queries) ConsumeRecoveryToken(ctx context.Context, arg ConsumeRecoveryTokenParams) (RecoveryToken, error) {
	row := q.db.QueryRowContext(ctx, consumeRecoveryToken, arg.Now, arg.Token)
	var i RecoveryToken
	err := row.Scan(
		&i.Token,
		&i.UserID,
		&i.CreatedAt,
		&i.ExpiresAt,
		&i.UsedAt,
	)
	return i, err
}

const createLoan = `-- name: CreateLoan :one
INSERT INTO loans (
    id, user_id, nickname, bank_name, interest_rate, total_months,
    total_amount, processing_fee, payment_day, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id, user_id, nickname, bank_name, interest_rate, total_months,
    total_amount, processing_fee, payment_day, created_at, updated_at, sync_status, synced_at
`

type CreateLoanParams struct {
	ID            string
	UserID        string
	Nickname      string
	BankName      string
	InterestRate  string
	TotalMonths   int64
	TotalAmount   string
	ProcessingFee string
	PaymentDay    int64
	CreatedAt     string
	UpdatedAt     string
}

func (q *Queries) CreateLoan(ctx context.Context, arg CreateLoanParams) (Loan, error) {
	row := q.db.QueryRowContext(ctx, createLoan,
		arg.ID,
		arg.UserID,
		arg.Nickname,
		arg.BankName,
		arg.InterestRate,
		arg.TotalMonths,
		arg.TotalAmount,
		arg.ProcessingFee,
		arg.PaymentDay,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	var i Loan
	err := scanLoan(row, &i)
	return i, err
}

const listLoansByUser = `-- name: ListLoansByUser :many
SELECT id, user_id, nickname, bank_name, interest_rate, total_months,
    total_amount, processing_fee, payment_day, created_at, updated_at, sync_status, synced_at
FROM loans
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
`

func (q *Queries) ListLoansByUser(ctx context.Context, userID string) ([]Loan, error) {
	rows, err := q.db.QueryContext(ctx, listLoansByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Loan
	for rows.Next() {
		var i Loan
		if err := scanLoan(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getLoanForUser = `-- name: GetLoanForUser :one
SELECT id, user_id, nickname, bank_name, interest_rate, total_months,
    total_amount, processing_fee, payment_day, created_at, updated_at, sync_status, synced_at
FROM loans
WHERE user_id = ? AND id = ?
`

type GetLoanForUserParams struct {
	UserID string
	ID     string
}

func (q *Queries) GetLoanForUser(ctx context.Context, arg GetLoanForUserParams) (Loan, error) {
	row := q.db.QueryRowContext(ctx, getLoanForUser, arg.UserID, arg.ID)
	var i Loan
	err := scanLoan(row, &i)
	return i, err
}

const getLoan = `-- name: GetLoan :one
SELECT id, user_id, nickname, bank_name, interest_rate, total_months,
    total_amount, processing_fee, payment_day, created_at, updated_at, sync_status, synced_at
FROM loans
WHERE id = ?
`

func (q *Queries) GetLoan(ctx context.Context, id string) (Loan, error) {
	row := q.db.QueryRowContext(ctx, getLoan, id)
	var i Loan
	err := scanLoan(row, &i)
	return i, err
}

const createPayment = `-- name: CreatePayment :one
INSERT INTO payments (
    id, loan_id, user_id, amount, payment_date, due_date, is_late, notes, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id, loan_id, user_id, amount, payment_date, due_date, is_late, notes,
    created_at, sync_status, synced_at
`

type CreatePaymentParams struct {
	ID          string
	LoanID      string
	UserID      string
	Amount      string
	PaymentDate string
	DueDate     string
	IsLate      bool
	Notes       string
	CreatedAt   string
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	row := q.db.QueryRowContext(ctx, createPayment,
		arg.ID,
		arg.LoanID,
		arg.UserID,
		arg.Amount,
		arg.PaymentDate,
		arg.DueDate,
		arg.IsLate,
		arg.Notes,
		arg.CreatedAt,
	)
	var i Payment
	err := scanPayment(row, &i)
	return i, err
}

const listPaymentsByUser = `-- name: ListPaymentsByUser :many
SELECT id, loan_id, user_id, amount, payment_date, due_date, is_late, notes,
    created_at, sync_status, synced_at
FROM payments
WHERE user_id = ?
ORDER BY payment_date DESC, created_at DESC, id DESC
`

func (q *Queries) ListPaymentsByUser(ctx context.Context, userID string) ([]Payment, error) {
	rows, err := q.db.QueryContext(ctx, listPaymentsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Payment
	for rows.Next() {
		var i Payment
		if err := scanPayment(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getPayment = `-- name: GetPayment :one
SELECT id, loan_id, user_id, amount, payment_date, due_date, is_late, notes,
    created_at, sync_status, synced_at
FROM payments
WHERE id = ?
`

func (q *Queries) GetPayment(ctx context.Context, id string) (Payment, error) {
	row := q.db.QueryRowContext(ctx, getPayment, id)
	var i Payment
	err := scanPayment(row, &i)
	return i, err
}

const getPendingExports = `-- name: GetPendingExports :many
SELECT kind, id, created_at, sync_attempts FROM (
    SELECT 'loan' AS kind, id, created_at, sync_attempts FROM loans
    WHERE sync_status = 'pending' AND (next_sync_at IS NULL OR next_sync_at <= ?1)
    UNION ALL
    SELECT 'payment' AS kind, id, created_at, sync_attempts FROM payments
    WHERE sync_status = 'pending' AND (next_sync_at IS NULL OR next_sync_at <= ?1)
)
ORDER BY created_at ASC, id ASC
LIMIT ?2
`

type GetPendingExportsParams struct {
	Now   string
	Limit int64
}

func (q *Queries) GetPendingExports(ctx context.Context, arg GetPendingExportsParams) ([]PendingExport, error) {
	rows, err := q.db.QueryContext(ctx, getPendingExports, arg.Now, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PendingExport
	for rows.Next() {
		var i PendingExport
		if err := rows.Scan(&i.Kind, &i.ID, &i.CreatedAt, &i.Attempts); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markLoanSyncStatus = `-- name: MarkLoanSyncStatus :exec
UPDATE loans SET sync_status = ?, synced_at = ?, sync_error = NULL, next_sync_at = NULL WHERE id = ?
`

const markPaymentSyncStatus = `-- name: MarkPaymentSyncStatus :exec
UPDATE payments SET sync_status = ?, synced_at = ?, sync_error = NULL, next_sync_at = NULL WHERE id = ?
`

type MarkSyncStatusParams struct {
	SyncStatus string
	SyncedAt   sql.NullString
	ID         string
}

func (q *Queries) MarkLoanSyncStatus(ctx context.Context, arg MarkSyncStatusParams) error {
	_, err := q.db.ExecContext(ctx, markLoanSyncStatus, arg.SyncStatus, arg.SyncedAt, arg.ID)
	return err
}

func (q *Queries) MarkPaymentSyncStatus(ctx context.Context, arg MarkSyncStatusParams) error {
	_, err := q.db.ExecContext(ctx, markPaymentSyncStatus, arg.SyncStatus, arg.SyncedAt, arg.ID)
	return err
}

const getLoanSyncAttempts = `-- name: GetLoanSyncAttempts :one
SELECT sync_attempts FROM loans WHERE id = ?
`

func (q *Queries) GetLoanSyncAttempts(ctx context.Context, id string) (int64, error) {
	row := q.db.QueryRowContext(ctx, getLoanSyncAttempts, id)
	var sync_attempts int64
	err := row.Scan(&sync_attempts)
	return sync_attempts, err
}

const getPaymentSyncAttempts = `-- name: GetPaymentSyncAttempts :one
SELECT sync_attempts FROM payments WHERE id = ?
`

func (q *Queries) GetPaymentSyncAttempts(ctx context.Context, id string) (int64, error) {
	row := q.db.QueryRowContext(ctx, getPaymentSyncAttempts, id)
	var sync_attempts int64
	err := row.Scan(&sync_attempts)
	return sync_attempts, err
}

const recordLoanSyncFailure = `-- name: RecordLoanSyncFailure :exec
UPDATE loans SET sync_status = ?, sync_attempts = ?, sync_error = ?, next_sync_at = ? WHERE id = ?
`

const recordPaymentSyncFailure = `-- name: RecordPaymentSyncFailure :exec
UPDATE payments SET sync_status = ?, sync_attempts = ?, sync_error = ?, next_sync_at = ? WHERE id = ?
`

type RecordSyncFailureParams struct {
	SyncStatus   string
	SyncAttempts int64
	SyncError    sql.NullString
	NextSyncAt   sql.NullString
	ID           string
}

func (q *Queries) RecordLoanSyncFailure(ctx context.Context, arg RecordSyncFailureParams) error {
	_, err := q.db.ExecContext(ctx, recordLoanSyncFailure,
		arg.SyncStatus,
		arg.SyncAttempts,
		arg.SyncError,
		arg.NextSyncAt,
		arg.ID,
	)
	return err
}

func (q *Queries) RecordPaymentSyncFailure(ctx context.Context, arg RecordSyncFailureParams) error {
	_, err := q.db.ExecContext(ctx, recordPaymentSyncFailure,
		arg.SyncStatus,
		arg.SyncAttempts,
		arg.SyncError,
		arg.NextSyncAt,
		arg.ID,
	)
	return err
}

const retryFailedLoanSyncs = `-- name: RetryFailedLoanSyncs :execrows
UPDATE loans SET sync_status = 'pending', sync_attempts = 0, next_sync_at = NULL
WHERE sync_status = 'error'
`

func (q *Queries) RetryFailedLoanSyncs(ctx context.Context) (int64, error) {
	result, err := q.db.ExecContext(ctx, retryFailedLoanSyncs)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const retryFailedPaymentSyncs = `-- name: RetryFailedPaymentSyncs :execrows
UPDATE payments SET sync_status = 'pending', sync_attempts = 0, next_sync_at = NULL
WHERE sync_status = 'error'
`

func (q *Queries) RetryFailedPaymentSyncs(ctx context.Context) (int64, error) {
	result, err := q.db.ExecContext(ctx, retryFailedPaymentSyncs)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLoan(row scanner, i *Loan) error {
	return row.Scan(
		&i.ID,
		&i.UserID,
		&i.Nickname,
		&i.BankName,
		&i.InterestRate,
		&i.TotalMonths,
		&i.TotalAmount,
		&i.ProcessingFee,
		&i.PaymentDay,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.SyncStatus,
		&i.SyncedAt,
	)
}

func scanPayment(row scanner, i *Payment) error {
	return row.Scan(
		&i.ID,
		&i.LoanID,
		&i.UserID,
		&i.Amount,
		&i.PaymentDate,
		&i.DueDate,
		&i.IsLate,
		&i.Notes,
		&i.CreatedAt,
		&i.SyncStatus,
		&i.SyncedAt,
	)
}
