package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StatusFilter narrows the loan list by repayment state.
type StatusFilter string

const (
	FilterAll       StatusFilter = "all"
	FilterActive    StatusFilter = "active"
	FilterOverdue   StatusFilter = "overdue"
	FilterCompleted StatusFilter = "completed"
)

// ParseStatusFilter maps a query value to a StatusFilter, defaulting to all.
func ParseStatusFilter(s string) StatusFilter {
	switch StatusFilter(strings.ToLower(strings.TrimSpace(s))) {
	case FilterActive:
		return FilterActive
	case FilterOverdue:
		return FilterOverdue
	case FilterCompleted:
		return FilterCompleted
	default:
		return FilterAll
	}
}

// Dashboard is a user's loans (newest first) and payments (latest payment
// date first) as loaded for one view.
type Dashboard struct {
	Loans    []Loan
	Payments []Payment
}

// PrependLoan places a freshly stored loan at the head of the list. An
// entry with the same id, as read back after the insert, is replaced.
func (d *Dashboard) PrependLoan(l Loan) {
	loans := make([]Loan, 0, len(d.Loans)+1)
	loans = append(loans, l)
	for _, existing := range d.Loans {
		if l.ID == "" || existing.ID != l.ID {
			loans = append(loans, existing)
		}
	}
	d.Loans = loans
}

// PrependPayment places a freshly stored payment at the head of the list,
// replacing an entry with the same id.
func (d *Dashboard) PrependPayment(p Payment) {
	payments := make([]Payment, 0, len(d.Payments)+1)
	payments = append(payments, p)
	for _, existing := range d.Payments {
		if p.ID == "" || existing.ID != p.ID {
			payments = append(payments, existing)
		}
	}
	d.Payments = payments
}

// PaymentsFor returns the payments recorded against loanID, in list order.
func (d Dashboard) PaymentsFor(loanID string) []Payment {
	var out []Payment
	for _, p := range d.Payments {
		if p.LoanID == loanID {
			out = append(out, p)
		}
	}
	return out
}

// Loan finds a loan by id.
func (d Dashboard) Loan(id string) (Loan, bool) {
	for _, l := range d.Loans {
		if l.ID == id {
			return l, true
		}
	}
	return Loan{}, false
}

func (d Dashboard) byLoan() map[string][]Payment {
	m := make(map[string][]Payment, len(d.Loans))
	for _, p := range d.Payments {
		m[p.LoanID] = append(m[p.LoanID], p)
	}
	return m
}

// Filter returns the loans whose nickname or bank name contains term
// (case-insensitive) and whose state matches status, preserving order.
func (d Dashboard) Filter(term string, status StatusFilter, now time.Time) []Loan {
	term = strings.ToLower(strings.TrimSpace(term))
	payments := d.byLoan()

	out := make([]Loan, 0, len(d.Loans))
	for _, l := range d.Loans {
		if term != "" &&
			!strings.Contains(strings.ToLower(l.Nickname), term) &&
			!strings.Contains(strings.ToLower(l.BankName), term) {
			continue
		}
		lp := payments[l.ID]
		switch status {
		case FilterCompleted:
			if !IsCompleted(l, lp) {
				continue
			}
		case FilterActive:
			if IsCompleted(l, lp) {
				continue
			}
		case FilterOverdue:
			if !IsOverdue(l, lp, now) {
				continue
			}
		}
		out = append(out, l)
	}
	return out
}

// Summaries derives a LoanSummary for each of loans.
func (d Dashboard) Summaries(loans []Loan, now time.Time) []LoanSummary {
	payments := d.byLoan()
	out := make([]LoanSummary, 0, len(loans))
	for _, l := range loans {
		out = append(out, Summarize(l, payments[l.ID], now))
	}
	return out
}

// Stats aggregates the whole portfolio.
type Stats struct {
	TotalLoans     int             `json:"total_loans"`
	ActiveLoans    int             `json:"active_loans"`
	OverdueLoans   int             `json:"overdue_loans"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	TotalRemaining decimal.Decimal `json:"total_remaining"`
}

// Stats is computed from the full lists, independent of any filter.
func (d Dashboard) Stats(now time.Time) Stats {
	payments := d.byLoan()
	s := Stats{
		TotalLoans:  len(d.Loans),
		TotalAmount: decimal.Zero,
		TotalPaid:   TotalPaid(d.Payments),
	}
	for _, l := range d.Loans {
		s.TotalAmount = s.TotalAmount.Add(l.TotalAmount)
		lp := payments[l.ID]
		if !IsCompleted(l, lp) {
			s.ActiveLoans++
		}
		if IsOverdue(l, lp, now) {
			s.OverdueLoans++
		}
	}
	s.TotalRemaining = s.TotalAmount.Sub(s.TotalPaid)
	return s
}
