package google

import (
	"time"

	"creditledger/internal/core"
)

// Column layouts. Money is written as plain decimal strings so the sheet
// never sees a float.
var (
	LoanHeader = []any{
		"ID", "User", "Nickname", "Bank", "Interest Rate %", "Months",
		"Principal", "Processing Fee", "Payment Day", "Monthly Installment", "Created At",
	}
	PaymentHeader = []any{
		"ID", "Loan", "User", "Amount", "Payment Date", "Due Date", "Late", "Notes", "Created At",
	}
)

func loanRow(l core.Loan) []any {
	installment := core.MonthlyInstallment(l.TotalAmount, l.InterestRate, l.TotalMonths)
	return []any{
		l.ID,
		l.UserID,
		l.Nickname,
		l.BankName,
		l.InterestRate.String(),
		l.TotalMonths,
		l.TotalAmount.StringFixed(2),
		l.ProcessingFee.StringFixed(2),
		l.PaymentDay,
		installment.StringFixed(2),
		l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func paymentRow(p core.Payment) []any {
	return []any{
		p.ID,
		p.LoanID,
		p.UserID,
		p.Amount.StringFixed(2),
		p.PaymentDate.String(),
		p.DueDate.String(),
		p.IsLate,
		p.Notes,
		p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// lastColumn returns the A1 column letter for a row of n cells (n <= 26).
func lastColumn(n int) string {
	if n < 1 {
		n = 1
	}
	return string(rune('A' + n - 1))
}
