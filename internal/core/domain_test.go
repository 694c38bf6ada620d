package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false},
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2025-03-15 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "2025-03-15" {
		t.Fatalf("got %s", d)
	}
	if _, err := ParseDate("15/03/2025"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestDateJSON(t *testing.T) {
	p := Payment{PaymentDate: NewDate(2025, 2, 3)}
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"payment_date":"2025-02-03"`) {
		t.Fatalf("unexpected json: %s", b)
	}
	var back Payment
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if !back.PaymentDate.Equal(p.PaymentDate.Time) {
		t.Fatalf("round trip mismatch: %s", back.PaymentDate)
	}
	if !back.DueDate.IsZero() {
		t.Fatalf("empty due date should decode to zero, got %s", back.DueDate)
	}
}

func validLoan() NewLoan {
	return NewLoan{
		Nickname:      "Car",
		BankName:      "BDO",
		InterestRate:  decimal.NewFromInt(12),
		TotalMonths:   12,
		TotalAmount:   decimal.NewFromInt(120000),
		ProcessingFee: decimal.Zero,
		PaymentDay:    15,
	}
}

func TestNewLoanValidate(t *testing.T) {
	if err := validLoan().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*NewLoan)
		want   error
	}{
		{"blank nickname", func(n *NewLoan) { n.Nickname = "  " }, ErrEmptyNickname},
		{"long nickname", func(n *NewLoan) { n.Nickname = strings.Repeat("x", 101) }, ErrNicknameTooLong},
		{"blank bank", func(n *NewLoan) { n.BankName = "" }, ErrEmptyBankName},
		{"negative rate", func(n *NewLoan) { n.InterestRate = decimal.NewFromInt(-1) }, ErrInvalidRate},
		{"zero months", func(n *NewLoan) { n.TotalMonths = 0 }, ErrInvalidTerm},
		{"zero amount", func(n *NewLoan) { n.TotalAmount = decimal.Zero }, ErrInvalidAmount},
		{"negative fee", func(n *NewLoan) { n.ProcessingFee = decimal.NewFromInt(-5) }, ErrInvalidFee},
		{"day 0", func(n *NewLoan) { n.PaymentDay = 0 }, ErrInvalidPaymentDay},
		{"day 32", func(n *NewLoan) { n.PaymentDay = 32 }, ErrInvalidPaymentDay},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := validLoan()
			tc.mutate(&n)
			if err := n.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNewPaymentValidate(t *testing.T) {
	good := NewPayment{
		LoanID:      "loan-1",
		Amount:      decimal.NewFromInt(1000),
		PaymentDate: NewDate(2025, 1, 10),
		DueDate:     NewDate(2025, 1, 15),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []NewPayment{
		{Amount: good.Amount, PaymentDate: good.PaymentDate, DueDate: good.DueDate},
		{LoanID: "l", Amount: decimal.Zero, PaymentDate: good.PaymentDate, DueDate: good.DueDate},
		{LoanID: "l", Amount: good.Amount, DueDate: good.DueDate},
		{LoanID: "l", Amount: good.Amount, PaymentDate: good.PaymentDate},
		{LoanID: "l", Amount: good.Amount, PaymentDate: good.PaymentDate, DueDate: good.DueDate, Notes: strings.Repeat("n", 501)},
	}
	for i, p := range bads {
		if err := p.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestIsLatePayment(t *testing.T) {
	due := NewDate(2025, 1, 15)
	if IsLatePayment(NewDate(2025, 1, 15), due) {
		t.Fatal("payment on the due date is not late")
	}
	if IsLatePayment(NewDate(2025, 1, 1), due) {
		t.Fatal("early payment is not late")
	}
	if !IsLatePayment(NewDate(2025, 1, 16), due) {
		t.Fatal("payment after the due date is late")
	}
}
