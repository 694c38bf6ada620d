package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus is the repayment state of a loan derived from its payments.
type LoanStatus string

const (
	StatusActive    LoanStatus = "active"
	StatusCompleted LoanStatus = "completed"
)

var (
	one          = decimal.NewFromInt(1)
	hundred      = decimal.NewFromInt(100)
	monthsInYear = decimal.NewFromInt(12)
)

// MonthlyRate converts an annual percentage rate to the per-month fraction.
func MonthlyRate(annualPercent decimal.Decimal) decimal.Decimal {
	return annualPercent.Div(hundred).Div(monthsInYear)
}

// MonthlyInstallment returns the constant payment that retires principal
// over months periods at the given annual percentage rate, rounded to
// centavos. With a zero rate it is principal/months, unrounded.
func MonthlyInstallment(principal, annualPercent decimal.Decimal, months int) decimal.Decimal {
	if months <= 0 {
		return decimal.Zero
	}
	n := decimal.NewFromInt(int64(months))
	r := MonthlyRate(annualPercent)
	if r.IsZero() {
		return principal.Div(n)
	}
	growth := one.Add(r).Pow(n)
	return principal.Mul(r).Mul(growth).Div(growth.Sub(one)).Round(2)
}

// TotalPaid sums the payment amounts.
func TotalPaid(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}

// CurrentDueDate is the loan's payment-day date in now's calendar month.
// Days past the end of the month roll into the next month.
func CurrentDueDate(paymentDay int, now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), paymentDay, 0, 0, 0, 0, now.Location())
}

// NextPaymentDate is the first payment-day date that is not already past.
func NextPaymentDate(paymentDay int, now time.Time) time.Time {
	due := CurrentDueDate(paymentDay, now)
	if now.After(due) {
		return time.Date(now.Year(), now.Month()+1, paymentDay, 0, 0, 0, 0, now.Location())
	}
	return due
}

// IsCompleted reports whether the payments cover the loan's total amount.
func IsCompleted(loan Loan, payments []Payment) bool {
	return TotalPaid(payments).GreaterThanOrEqual(loan.TotalAmount)
}

// IsCurrentPaymentLate reports whether this month's due date has passed
// while installments remain unpaid.
func IsCurrentPaymentLate(loan Loan, payments []Payment, now time.Time) bool {
	return now.After(CurrentDueDate(loan.PaymentDay, now)) && len(payments) < loan.TotalMonths
}

// IsOverdue is IsCurrentPaymentLate restricted to loans not yet completed.
// Only the current month is considered, not missed installments from
// earlier months.
func IsOverdue(loan Loan, payments []Payment, now time.Time) bool {
	return !IsCompleted(loan, payments) && IsCurrentPaymentLate(loan, payments, now)
}

// LoanSummary is the derived, display-ready state of a loan.
type LoanSummary struct {
	Loan               Loan
	Payments           []Payment
	MonthlyInstallment decimal.Decimal
	TotalInterest      decimal.Decimal
	TotalPaid          decimal.Decimal
	RemainingBalance   decimal.Decimal
	PaidMonths         int
	RemainingMonths    int
	ProgressPercent    float64
	Status             LoanStatus
	Late               bool
	Overdue            bool
	NextPaymentDate    time.Time
}

// Summarize derives a LoanSummary from a loan and its own payments.
func Summarize(loan Loan, payments []Payment, now time.Time) LoanSummary {
	installment := MonthlyInstallment(loan.TotalAmount, loan.InterestRate, loan.TotalMonths)
	paid := TotalPaid(payments)

	s := LoanSummary{
		Loan:               loan,
		Payments:           payments,
		MonthlyInstallment: installment,
		TotalInterest:      installment.Mul(decimal.NewFromInt(int64(loan.TotalMonths))).Sub(loan.TotalAmount),
		TotalPaid:          paid,
		RemainingBalance:   loan.TotalAmount.Sub(paid),
		PaidMonths:         len(payments),
		RemainingMonths:    loan.TotalMonths - len(payments),
		Status:             StatusActive,
		Late:               IsCurrentPaymentLate(loan, payments, now),
		NextPaymentDate:    NextPaymentDate(loan.PaymentDay, now),
	}
	if loan.TotalMonths > 0 {
		s.ProgressPercent = float64(len(payments)) / float64(loan.TotalMonths) * 100
	}
	if paid.GreaterThanOrEqual(loan.TotalAmount) {
		s.Status = StatusCompleted
	}
	s.Overdue = s.Status != StatusCompleted && s.Late
	return s
}

// ProgressWidth clamps ProgressPercent to a 0-100 integer for progress bars.
func (s LoanSummary) ProgressWidth() int {
	w := int(s.ProgressPercent + 0.5)
	if w < 0 {
		return 0
	}
	if w > 100 {
		return 100
	}
	return w
}
