package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	minPaymentDay = 1
	maxPaymentDay = 31

	maxNicknameLength = 100
	maxNotesLength    = 500

	dateLayout = "2006-01-02"
)

type (
	// Date is a calendar date without a meaningful time of day.
	Date struct {
		time.Time
	}

	// Loan describes a borrowing agreement owned by a user.
	Loan struct {
		ID            string          `json:"id"`
		UserID        string          `json:"user_id"`
		Nickname      string          `json:"nickname"`
		BankName      string          `json:"bank_name"`
		InterestRate  decimal.Decimal `json:"interest_rate"` // annual percent
		TotalMonths   int             `json:"total_months"`
		TotalAmount   decimal.Decimal `json:"total_amount"` // principal
		ProcessingFee decimal.Decimal `json:"processing_fee"`
		PaymentDay    int             `json:"payment_day"` // day of month, 1-31
		CreatedAt     time.Time       `json:"created_at"`
		UpdatedAt     time.Time       `json:"updated_at"`
	}

	// Payment is an amount applied against a Loan on a given date.
	Payment struct {
		ID          string          `json:"id"`
		LoanID      string          `json:"loan_id"`
		UserID      string          `json:"user_id"`
		Amount      decimal.Decimal `json:"amount"`
		PaymentDate Date            `json:"payment_date"`
		DueDate     Date            `json:"due_date"`
		IsLate      bool            `json:"is_late"`
		Notes       string          `json:"notes"`
		CreatedAt   time.Time       `json:"created_at"`
	}

	// NewLoan holds the user-supplied fields of a loan before it is stored.
	NewLoan struct {
		Nickname      string
		BankName      string
		InterestRate  decimal.Decimal
		TotalMonths   int
		TotalAmount   decimal.Decimal
		ProcessingFee decimal.Decimal
		PaymentDay    int
	}

	// NewPayment holds the user-supplied fields of a payment before it is stored.
	NewPayment struct {
		LoanID      string
		Amount      decimal.Decimal
		PaymentDate Date
		DueDate     Date
		Notes       string
	}
)

var (
	ErrEmptyNickname     = errors.New("nickname is required")
	ErrEmptyBankName     = errors.New("bank name is required")
	ErrNicknameTooLong   = errors.New("nickname too long (max 100 characters)")
	ErrInvalidRate       = errors.New("interest rate cannot be negative")
	ErrInvalidTerm       = errors.New("total months must be greater than zero")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidFee        = errors.New("processing fee cannot be negative")
	ErrInvalidPaymentDay = errors.New("payment day must be between 1 and 31")
	ErrEmptyLoanID       = errors.New("loan is required")
	ErrInvalidDate       = errors.New("invalid date")
	ErrNotesTooLong      = errors.New("notes too long (max 500 characters)")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// String formats the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (n NewLoan) Validate() error {
	nickname := strings.TrimSpace(n.Nickname)
	if nickname == "" {
		return ErrEmptyNickname
	}
	if len(nickname) > maxNicknameLength {
		return ErrNicknameTooLong
	}
	if strings.TrimSpace(n.BankName) == "" {
		return ErrEmptyBankName
	}
	if n.InterestRate.IsNegative() {
		return ErrInvalidRate
	}
	if n.TotalMonths <= 0 {
		return ErrInvalidTerm
	}
	if !n.TotalAmount.IsPositive() {
		return ErrInvalidAmount
	}
	if n.ProcessingFee.IsNegative() {
		return ErrInvalidFee
	}
	if n.PaymentDay < minPaymentDay || n.PaymentDay > maxPaymentDay {
		return ErrInvalidPaymentDay
	}
	return nil
}

func (n NewPayment) Validate() error {
	if strings.TrimSpace(n.LoanID) == "" {
		return ErrEmptyLoanID
	}
	if !n.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := n.PaymentDate.Validate(); err != nil {
		return err
	}
	if err := n.DueDate.Validate(); err != nil {
		return err
	}
	if len(n.Notes) > maxNotesLength {
		return ErrNotesTooLong
	}
	return nil
}

// IsLatePayment reports whether a payment made on paid settles an
// installment due on due after its due date.
func IsLatePayment(paid, due Date) bool {
	return paid.After(due.Time)
}
