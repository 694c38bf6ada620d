package storage

import (
	"database/sql"
)

type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	Provider     string
	PasswordHash string
	CreatedAt    string
}

type Session struct {
	ID        string
	UserID    string
	CreatedAt string
	ExpiresAt string
	RevokedAt sql.NullString
}

type RecoveryToken struct {
	Token     string
	UserID    string
	CreatedAt string
	ExpiresAt string
	UsedAt    sql.NullString
}

type Loan struct {
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
	SyncStatus    string
	SyncedAt      sql.NullString
}

type Payment struct {
	ID          string
	LoanID      string
	UserID      string
	Amount      string
	PaymentDate string
	DueDate     string
	IsLate      bool
	Notes       string
	CreatedAt   string
	SyncStatus  string
	SyncedAt    sql.NullString
}

// PendingExport is a loan or payment row the export worker has not yet
// mirrored and whose retry delay, if any, has passed.
type PendingExport struct {
	Kind      string
	ID        string
	CreatedAt string
	Attempts  int64
}
