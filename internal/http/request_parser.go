// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Loan and payment submissions arrive either as htmx form posts or as JSON;
// both go through RequestBodyParser and end up as core.NewLoan/NewPayment.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"creditledger/internal/core"
)

const maxBodyBytes = 64 << 10

// ErrMalformedBody wraps every failure to read or decode a request body.
var ErrMalformedBody = errors.New("malformed request body")

// FieldError names the form field a parse failure belongs to. Error()
// is shown to the user.
type FieldError struct {
	Label string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Label + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads at most maxBodyBytes of the request body
// once and keeps it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	switch {
	case err != nil:
		p.err = fmt.Errorf("%w: %v", ErrMalformedBody, err)
	case len(body) > maxBodyBytes:
		p.err = fmt.Errorf("%w: body larger than %d bytes", ErrMalformedBody, maxBodyBytes)
	default:
		p.body = body
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(p.contentType, "application/json") || p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = fmt.Errorf("%w: invalid JSON: %v", ErrMalformedBody, err)
			return p.err
		}
		return nil
	}

	form, err := url.ParseQuery(string(p.body))
	if err != nil {
		p.err = fmt.Errorf("%w: invalid form: %v", ErrMalformedBody, err)
		return p.err
	}
	p.formData = form
	return nil
}

// Get returns a trimmed, sanitized string value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseNewLoan reads the add-loan form. Range checks are left to
// core.NewLoan.Validate; only syntax is checked here.
func ParseNewLoan(p *RequestBodyParser) (core.NewLoan, error) {
	if err := p.Parse(); err != nil {
		return core.NewLoan{}, err
	}

	var errs []error
	amount := func(key, label string, optional bool) decimal.Decimal {
		raw := p.Get(key)
		if raw == "" && optional {
			return decimal.Zero
		}
		d, err := core.ParseAmount(raw)
		if err != nil {
			errs = append(errs, &FieldError{Label: label, Err: err})
		}
		return d
	}
	integer := func(key, label string, sentinel error) int {
		n, err := strconv.Atoi(p.Get(key))
		if err != nil {
			errs = append(errs, &FieldError{Label: label, Err: sentinel})
		}
		return n
	}

	n := core.NewLoan{
		Nickname:      p.Get("nickname"),
		BankName:      p.Get("bank_name"),
		InterestRate:  amount("interest_rate", "Interest rate", false),
		TotalMonths:   integer("total_months", "Total months", core.ErrInvalidTerm),
		TotalAmount:   amount("total_amount", "Total amount", false),
		ProcessingFee: amount("processing_fee", "Processing fee", true),
		PaymentDay:    integer("payment_day", "Payment day", core.ErrInvalidPaymentDay),
	}
	if len(errs) > 0 {
		return core.NewLoan{}, errs[0]
	}
	return n, nil
}

// ParseNewPayment reads the record-payment form.
func ParseNewPayment(p *RequestBodyParser) (core.NewPayment, error) {
	if err := p.Parse(); err != nil {
		return core.NewPayment{}, err
	}

	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		return core.NewPayment{}, &FieldError{Label: "Payment amount", Err: err}
	}
	paid, err := core.ParseDate(p.Get("payment_date"))
	if err != nil {
		return core.NewPayment{}, &FieldError{Label: "Payment date", Err: err}
	}
	due, err := core.ParseDate(p.Get("due_date"))
	if err != nil {
		return core.NewPayment{}, &FieldError{Label: "Due date", Err: err}
	}

	return core.NewPayment{
		LoanID:      p.Get("loan_id"),
		Amount:      amount,
		PaymentDate: paid,
		DueDate:     due,
		Notes:       p.Get("notes"),
	}, nil
}

// FormValue reads a sanitized form value, for handlers that do not need
// the JSON path.
func FormValue(r *http.Request, key string) string {
	return sanitizeInput(r.FormValue(key))
}
