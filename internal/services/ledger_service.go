package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"creditledger/internal/amqp"
	"creditledger/internal/core"
	applog "creditledger/internal/log"
	"creditledger/internal/store"
)

// EventPublisher announces stored ledger records. *amqp.Client satisfies it.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error
}

// LedgerService loads and mutates a user's loans and payments.
type LedgerService struct {
	store  store.LedgerStore
	events EventPublisher
	logger *applog.Logger
	log    *applog.StructuredLogger
	now    func() time.Time
}

// NewLedgerService returns a service over s. events may be nil.
func NewLedgerService(s store.LedgerStore, events EventPublisher, logger *applog.Logger) *LedgerService {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentLedger)
	return &LedgerService{
		store:  s,
		events: events,
		logger: logger,
		log:    applog.NewStructuredLogger(logger),
		now:    time.Now,
	}
}

// LoadDashboard fetches the user's loans and payments concurrently. Either
// failure fails the whole load.
func (s *LedgerService) LoadDashboard(ctx context.Context, userID string) (*core.Dashboard, error) {
	var d core.Dashboard
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		loans, err := s.store.ListLoans(gctx, userID)
		if err != nil {
			return fmt.Errorf("load loans: %w", err)
		}
		d.Loans = loans
		return nil
	})
	g.Go(func() error {
		payments, err := s.store.ListPayments(gctx, userID)
		if err != nil {
			return fmt.Errorf("load payments: %w", err)
		}
		d.Payments = payments
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &d, nil
}

// AddLoan validates and stores a loan owned by userID.
func (s *LedgerService) AddLoan(ctx context.Context, userID string, n core.NewLoan) (core.Loan, error) {
	if err := n.Validate(); err != nil {
		return core.Loan{}, err
	}

	loan, err := s.store.InsertLoan(ctx, core.Loan{
		UserID:        userID,
		Nickname:      n.Nickname,
		BankName:      n.BankName,
		InterestRate:  n.InterestRate,
		TotalMonths:   n.TotalMonths,
		TotalAmount:   n.TotalAmount,
		ProcessingFee: n.ProcessingFee,
		PaymentDay:    n.PaymentDay,
	})
	if err != nil {
		return core.Loan{}, fmt.Errorf("add loan: %w", err)
	}

	s.log.LogLoanCreated(ctx, userID, loan.ID, loan.Nickname, loan.TotalAmount.String())
	s.publish(ctx, amqp.NewLoanCreatedMessage(loan.ID, userID))
	return loan, nil
}

// RecordPayment stores a payment against one of userID's loans. The
// payment is late when made after its due date.
func (s *LedgerService) RecordPayment(ctx context.Context, userID string, n core.NewPayment) (core.Payment, error) {
	if err := n.Validate(); err != nil {
		return core.Payment{}, err
	}

	if _, err := s.store.GetLoan(ctx, userID, n.LoanID); err != nil {
		return core.Payment{}, err
	}

	payment, err := s.store.InsertPayment(ctx, core.Payment{
		LoanID:      n.LoanID,
		UserID:      userID,
		Amount:      n.Amount,
		PaymentDate: n.PaymentDate,
		DueDate:     n.DueDate,
		IsLate:      core.IsLatePayment(n.PaymentDate, n.DueDate),
		Notes:       n.Notes,
	})
	if err != nil {
		return core.Payment{}, fmt.Errorf("record payment: %w", err)
	}

	s.log.LogPaymentRecorded(ctx, userID, payment.ID, payment.LoanID, payment.Amount.String(), payment.IsLate)
	s.publish(ctx, amqp.NewPaymentRecordedMessage(payment.ID, userID))
	return payment, nil
}

// LoanDetails summarizes one of userID's loans with its payments.
func (s *LedgerService) LoanDetails(ctx context.Context, userID, loanID string) (core.LoanSummary, error) {
	d, err := s.LoadDashboard(ctx, userID)
	if err != nil {
		return core.LoanSummary{}, err
	}
	loan, ok := d.Loan(loanID)
	if !ok {
		return core.LoanSummary{}, store.ErrLoanNotFound
	}
	return core.Summarize(loan, d.PaymentsFor(loanID), s.now()), nil
}

func (s *LedgerService) publish(ctx context.Context, msg *amqp.LedgerEventMessage) {
	if s.events == nil {
		s.logger.DebugContext(ctx, "No event publisher configured, skipping ledger event", "type", msg.Type)
		return
	}
	// the record is already stored; a lost event is recovered by the
	// worker's pending-export scan
	if err := s.events.PublishLedgerEvent(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			"type", msg.Type,
			"id", msg.ID,
			"error", err)
	}
}
