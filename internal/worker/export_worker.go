// Package worker mirrors stored loans and payments into the export
// spreadsheet, driven by ledger events with a periodic pending-row scan
// as backstop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"creditledger/internal/amqp"
	"creditledger/internal/core"
	"creditledger/internal/sheets"
	"creditledger/internal/storage"
	"creditledger/internal/store"
)

// Repository is the part of the SQLite repository the worker reads and
// updates. *storage.SQLiteRepository satisfies it.
type Repository interface {
	GetLoanByID(ctx context.Context, id string) (core.Loan, error)
	GetPaymentByID(ctx context.Context, id string) (core.Payment, error)
	GetPendingExports(ctx context.Context, limit int) ([]storage.PendingExport, error)
	MarkExported(ctx context.Context, kind, id string) error
	RecordExportFailure(ctx context.Context, kind, id string, cause error, policy storage.RetryPolicy) (storage.ExportAttempt, error)
	RetryFailedExports(ctx context.Context) (int64, error)
}

var _ Repository = (*storage.SQLiteRepository)(nil)

// Config holds the export worker settings.
type Config struct {
	// BatchSize is the max number of records per pending scan (default: 10)
	BatchSize int

	// MaxAttempts is how many failed exports a record gets before it is
	// parked until the next restart (default: 5)
	MaxAttempts int

	// RetryBackoff is the wait after the first failure; it doubles with
	// each further one (default: 1m)
	RetryBackoff time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		BatchSize:    10,
		MaxAttempts:  5,
		RetryBackoff: time.Minute,
	}
}

type ExportWorker struct {
	repo      Repository
	exporter  sheets.LedgerExporter
	batchSize int
	retry     storage.RetryPolicy
}

func NewExportWorker(repo Repository, exporter sheets.LedgerExporter, cfg Config) *ExportWorker {
	def := DefaultConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	return &ExportWorker{
		repo:      repo,
		exporter:  exporter,
		batchSize: cfg.BatchSize,
		retry:     storage.RetryPolicy{MaxAttempts: cfg.MaxAttempts, Backoff: cfg.RetryBackoff},
	}
}

// HandleEvent exports the record named by msg. Events for records that no
// longer exist are dropped. A failed export is counted against the record
// and left to the pending scan, which retries it with backoff, so the
// event is acked; only a failure to record the attempt is returned.
func (w *ExportWorker) HandleEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"component", "worker",
		"type", msg.Type,
		"id", msg.ID)

	var kind string
	switch msg.Type {
	case amqp.EventLoanCreated:
		kind = storage.KindLoan
	case amqp.EventPaymentRecorded:
		kind = storage.KindPayment
	default:
		slog.WarnContext(ctx, "Ignoring unknown ledger event", "component", "worker", "type", msg.Type)
		return nil
	}

	err := w.export(ctx, kind, msg.ID)
	if isMissing(err) {
		slog.WarnContext(ctx, "Ledger event references a missing record, dropping",
			"component", "worker",
			"kind", kind,
			"id", msg.ID)
		return nil
	}
	var deferred *deferredError
	if errors.As(err, &deferred) {
		slog.WarnContext(ctx, "Export failed, left for the pending scan",
			"component", "worker",
			"kind", kind,
			"id", msg.ID,
			"error", deferred.cause)
		return nil
	}
	return err
}

// RetryFailed gives every record that ran out of attempts a fresh budget.
func (w *ExportWorker) RetryFailed(ctx context.Context) (int64, error) {
	n, err := w.repo.RetryFailedExports(ctx)
	if err != nil {
		return n, fmt.Errorf("retry failed exports: %w", err)
	}
	return n, nil
}

// ProcessPending exports one batch of records that were never exported,
// covering events lost while the worker or broker was down.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	_, _, err := w.processPending(ctx, w.batchSize)
	return err
}

// StartupCheck requeues records that ran out of attempts before the last
// shutdown and drains a larger backlog once when the worker starts.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	requeued, err := w.RetryFailed(ctx)
	if err != nil {
		return fmt.Errorf("startup export check: %w", err)
	}
	if requeued > 0 {
		slog.InfoContext(ctx, "Requeued failed exports", "component", "worker", "count", requeued)
	}

	synced, failed, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup export check: %w", err)
	}
	if synced+failed == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup", "component", "worker")
		return nil
	}
	slog.InfoContext(ctx, "Startup export completed",
		"component", "worker",
		"exported", synced,
		"errors", failed)
	return nil
}

// RunPeriodic calls ProcessPending every interval until ctx is done.
func (w *ExportWorker) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic export failed", "component", "worker", "error", err)
			}
		}
	}
}

func (w *ExportWorker) processPending(ctx context.Context, limit int) (synced, failed int, err error) {
	pending, err := w.repo.GetPendingExports(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending exports: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "component", "worker", "count", len(pending))

	for _, p := range pending {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		if err := w.export(ctx, p.Kind, p.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to export record",
				"component", "worker",
				"kind", p.Kind,
				"id", p.ID,
				"error", err)
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

// deferredError is an export failure already counted against the record.
type deferredError struct {
	cause   error
	attempt storage.ExportAttempt
}

func (e *deferredError) Error() string {
	return fmt.Sprintf("export attempt %d failed: %v", e.attempt.Attempts, e.cause)
}

func (e *deferredError) Unwrap() error {
	return e.cause
}

func isMissing(err error) bool {
	return errors.Is(err, store.ErrLoanNotFound) || errors.Is(err, store.ErrPaymentNotFound)
}

func (w *ExportWorker) export(ctx context.Context, kind, id string) error {
	var (
		ref string
		err error
	)
	switch kind {
	case storage.KindLoan:
		var loan core.Loan
		if loan, err = w.repo.GetLoanByID(ctx, id); err != nil {
			return w.failed(ctx, kind, id, fmt.Errorf("get loan: %w", err))
		}
		ref, err = w.exporter.AppendLoan(ctx, loan)
	case storage.KindPayment:
		var payment core.Payment
		if payment, err = w.repo.GetPaymentByID(ctx, id); err != nil {
			return w.failed(ctx, kind, id, fmt.Errorf("get payment: %w", err))
		}
		ref, err = w.exporter.AppendPayment(ctx, payment)
	default:
		return fmt.Errorf("unknown export kind %q", kind)
	}

	if err != nil {
		return w.failed(ctx, kind, id, fmt.Errorf("append %s to sheets: %w", kind, err))
	}

	// the row is written; a failed mark only risks a duplicate row later
	if err := w.repo.MarkExported(ctx, kind, id); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as exported", "component", "worker", "kind", kind, "id", id, "error", err)
	}

	slog.InfoContext(ctx, "Exported record",
		"component", "worker",
		"kind", kind,
		"id", id,
		"sheets_ref", ref)
	return nil
}

// failed counts cause against the record. Missing records are reported
// as such; everything else becomes a deferredError once recorded.
func (w *ExportWorker) failed(ctx context.Context, kind, id string, cause error) error {
	if isMissing(cause) {
		return cause
	}
	attempt, err := w.repo.RecordExportFailure(ctx, kind, id, cause, w.retry)
	if err != nil {
		if isMissing(err) {
			return err
		}
		return fmt.Errorf("%w (recording the failure: %v)", cause, err)
	}
	if attempt.Exhausted {
		slog.ErrorContext(ctx, "Export failed permanently after max attempts",
			"component", "worker",
			"kind", kind,
			"id", id,
			"attempts", attempt.Attempts,
			"error", cause)
	} else {
		slog.WarnContext(ctx, "Export failed, retry scheduled",
			"component", "worker",
			"kind", kind,
			"id", id,
			"attempt", attempt.Attempts,
			"next_attempt_at", attempt.NextAttemptAt)
	}
	return &deferredError{cause: cause, attempt: attempt}
}
