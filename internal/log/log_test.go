package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func bufferLogger(buf *bytes.Buffer, component string) *Logger {
	return New(Config{
		Component: component,
		Handler:   slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMiddlewareStoresLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf, ComponentHTTP)

	var got *Logger
	h := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got != logger {
		t.Fatal("expected logger from request context")
	}
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatal("expected fallback logger outside a request")
	}
}

func TestStructuredLoggerLedgerEvents(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(bufferLogger(&buf, ComponentLedger))

	sl.LogLoanCreated(context.Background(), "u1", "l1", "Car", "120000")
	sl.LogPaymentRecorded(context.Background(), "u1", "p1", "l1", "10661.85", true)
	sl.LogAuthAction(context.Background(), "login", false, errors.New("Invalid login credentials"))

	out := buf.String()
	for _, want := range []string{
		"Loan created successfully", "loan_id=l1", "nickname=Car",
		"Payment recorded successfully", "payment_id=p1", "is_late=true",
		"level=WARN", "action=login", `error="Invalid login credentials"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestWithComponentReplacesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf, ComponentApp).WithComponent(ComponentHTTP).WithUser("u1")

	logger.Info("hello")

	out := buf.String()
	if strings.Count(out, "component=") != 1 || !strings.Contains(out, "component=http") {
		t.Errorf("want a single component=http attribute:\n%s", out)
	}
	if !strings.Contains(out, "user_id=u1") {
		t.Errorf("missing user_id:\n%s", out)
	}
	if logger.Component() != ComponentHTTP {
		t.Errorf("Component() = %q", logger.Component())
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Component: ComponentLedger, JSON: true, Output: &buf}).Info("stored")
	if !strings.Contains(buf.String(), `"component":"ledger"`) {
		t.Errorf("JSON output = %s", buf.String())
	}
}
