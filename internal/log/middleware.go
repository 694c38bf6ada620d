package log

import (
	"context"
	"log/slog"
	"net/http"
)

// ContextKey type for context keys
type ContextKey string

// LoggerContextKey holds the request-scoped *Logger.
const LoggerContextKey ContextKey = "logger"

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext returns the request logger, or one over slog.Default with
// component "unknown" outside a request.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default().With(FieldComponent, "unknown"),
		component: "unknown",
		root:      slog.Default().Handler(),
	}
}

// Middleware seeds every request context with logger.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithLogger(r.Context(), logger)))
		})
	}
}

// RequestIDMiddleware tags the request logger with the id extractRequestID
// finds; it must run after the middleware that assigns the id.
func RequestIDMiddleware(extractRequestID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := FromContext(r.Context()).With(FieldRequestID, extractRequestID(r))
			next.ServeHTTP(w, r.WithContext(WithLogger(r.Context(), logger)))
		})
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogHTTPStart logs the start of an HTTP request
func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Header.Get("Referer")).
		WithClientIP(clientIP)

	sl.logger.InfoContext(ctx, "HTTP request started", fields.ToSlice()...)
}

// LogHTTPEnd logs the completion of an HTTP request
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP)

	sl.logger.Logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogLoanCreated logs a successfully stored loan
func (sl *StructuredLogger) LogLoanCreated(ctx context.Context, userID, loanID, nickname, amount string) {
	fields := NewFields().
		WithUser(userID).
		WithLoan(loanID, nickname, amount).
		WithOperation(OpCreate)

	sl.logger.InfoContext(ctx, "Loan created successfully", fields.ToSlice()...)
}

// LogPaymentRecorded logs a successfully stored payment
func (sl *StructuredLogger) LogPaymentRecorded(ctx context.Context, userID, paymentID, loanID, amount string, late bool) {
	fields := NewFields().
		WithUser(userID).
		WithPayment(paymentID, loanID, amount, late).
		WithOperation(OpCreate)

	sl.logger.InfoContext(ctx, "Payment recorded successfully", fields.ToSlice()...)
}

// LogAuthAction logs the outcome of an auth action without credentials
func (sl *StructuredLogger) LogAuthAction(ctx context.Context, action string, success bool, err error) {
	fields := NewFields().
		WithError(err)
	fields[FieldAction] = action
	fields[FieldSuccess] = success

	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}
	sl.logger.Logger.Log(ctx, level, "Auth action completed", fields.ToSlice()...)
}
