package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"creditledger/internal/auth"
	"creditledger/internal/core"
	applog "creditledger/internal/log"
	"creditledger/internal/middleware/authguard"
	"creditledger/internal/store"
)

const (
	msgSaveLoanFailed      = "Could not save the loan. Please try again."
	msgRecordPaymentFailed = "Could not record the payment. Please try again."
	msgMalformedBody       = "The form could not be read. Please check your input and try again."

	// eventGridRefresh makes the loan grid reload itself when a mutation
	// response could not include it.
	eventGridRefresh = "grid:refresh"
)

type statusOption struct {
	Value core.StatusFilter
	Label string
}

var statusOptions = []statusOption{
	{core.FilterAll, "All Loans"},
	{core.FilterActive, "Active Loans"},
	{core.FilterOverdue, "Overdue Loans"},
	{core.FilterCompleted, "Completed Loans"},
}

type dashboardView struct {
	User     *auth.User
	Query    string
	Status   core.StatusFilter
	Statuses []statusOption
	Stats    core.Stats
	Loans    []core.LoanSummary
	AllLoans []core.Loan
	Today    time.Time
	// Selected preselects a loan in the payment form.
	Selected string
}

// filterParams reads q and status from the query string.
func filterParams(r *http.Request) (string, core.StatusFilter) {
	return sanitizeInput(r.FormValue("q")), core.ParseStatusFilter(r.FormValue("status"))
}

// requestUser is set by the guard for every /dashboard route.
func requestUser(r *http.Request) *auth.User {
	u, _ := authguard.UserFromContext(r.Context())
	return u
}

// loadDashboard never fails: a load error is logged and the page shows
// the empty state.
func (s *Server) loadDashboard(ctx context.Context, user *auth.User) (*core.Dashboard, bool) {
	d, err := s.ledger.LoadDashboard(ctx, user.ID)
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Dashboard load failed",
			applog.FieldUserID, user.ID,
			applog.FieldOperation, applog.OpList,
			applog.FieldError, err)
		return &core.Dashboard{}, false
	}
	return d, true
}

func (s *Server) buildView(user *auth.User, d *core.Dashboard, q string, status core.StatusFilter) dashboardView {
	now := s.now()
	return dashboardView{
		User:     user,
		Query:    q,
		Status:   status,
		Statuses: statusOptions,
		Stats:    d.Stats(now),
		Loans:    d.Summaries(d.Filter(q, status, now), now),
		AllLoans: d.Loans,
		Today:    now,
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	user := requestUser(r)
	q, status := filterParams(r)
	d, _ := s.loadDashboard(ctx, user)
	s.render(w, r, http.StatusOK, "dashboard_page", s.buildView(user, d, q, status))
}

// handleLoanGrid re-renders the grid for the search box and status select.
func (s *Server) handleLoanGrid(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	user := requestUser(r)
	q, status := filterParams(r)
	d, _ := s.loadDashboard(ctx, user)

	if isHTMX(r) {
		w.Header().Set("HX-Replace-Url", dashboardURL(q, status))
	}
	s.render(w, r, http.StatusOK, "loan_grid", s.buildView(user, d, q, status))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	user := requestUser(r)
	d, _ := s.loadDashboard(ctx, user)
	s.render(w, r, http.StatusOK, "stats", s.buildView(user, d, "", core.FilterAll))
}

func (s *Server) handleNewLoanModal(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "loan_modal", dashboardView{User: requestUser(r), Today: s.now()})
}

func (s *Server) handleNewPaymentModal(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	user := requestUser(r)
	d, _ := s.loadDashboard(ctx, user)
	view := s.buildView(user, d, "", core.FilterAll)
	view.Selected = sanitizeInput(r.URL.Query().Get("loan_id"))
	s.render(w, r, http.StatusOK, "payment_modal", view)
}

func (s *Server) handleLoanDetails(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	user := requestUser(r)
	summary, err := s.ledger.LoanDetails(ctx, user.ID, mux.Vars(r)["id"])
	if errors.Is(err, store.ErrLoanNotFound) {
		NotFoundError("Loan not found").Write(w)
		return
	}
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Loan details failed",
			applog.FieldLoanID, mux.Vars(r)["id"],
			applog.FieldError, err)
		InternalServerError("Could not load the loan. Please try again.").Write(w)
		return
	}
	s.render(w, r, http.StatusOK, "loan_details", summary)
}

// handleCreateLoan stores a loan and answers with the refreshed grid,
// filtered by the q and status fields the modal form carries.
func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	user := requestUser(r)
	p := NewRequestBodyParser(r)
	n, err := ParseNewLoan(p)
	if err != nil {
		s.mutationFailed(w, r, err, msgSaveLoanFailed)
		return
	}

	loan, err := s.ledger.AddLoan(ctx, user.ID, n)
	if err != nil {
		s.mutationFailed(w, r, err, msgSaveLoanFailed)
		return
	}

	if acceptsJSON(r) {
		JSON(w, http.StatusCreated, loan)
		return
	}

	b := NewHTMXResponse().
		Status(http.StatusCreated).
		TriggerLoanCreated(loan.ID).
		TriggerStatsRefresh().
		TriggerModalClose().
		TriggerSuccessNotification("Loan added")
	d, loaded := s.loadDashboard(ctx, user)
	if !loaded {
		b.Trigger(eventGridRefresh, struct{}{}).Reswap("none").Write(w)
		return
	}
	d.PrependLoan(loan)
	s.writeGrid(w, r, b, user, d, p)
}

// handleRecordPayment mirrors handleCreateLoan for payments.
func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	user := requestUser(r)
	p := NewRequestBodyParser(r)
	n, err := ParseNewPayment(p)
	if err != nil {
		s.mutationFailed(w, r, err, msgRecordPaymentFailed)
		return
	}

	payment, err := s.ledger.RecordPayment(ctx, user.ID, n)
	if err != nil {
		s.mutationFailed(w, r, err, msgRecordPaymentFailed)
		return
	}

	if acceptsJSON(r) {
		JSON(w, http.StatusCreated, payment)
		return
	}

	msg := "Payment recorded"
	if payment.IsLate {
		msg = "Payment recorded (late)"
	}
	b := NewHTMXResponse().
		Status(http.StatusCreated).
		TriggerPaymentRecorded(payment.LoanID).
		TriggerStatsRefresh().
		TriggerModalClose().
		TriggerSuccessNotification(msg)
	d, loaded := s.loadDashboard(ctx, user)
	if !loaded {
		b.Trigger(eventGridRefresh, struct{}{}).Reswap("none").Write(w)
		return
	}
	d.PrependPayment(payment)
	s.writeGrid(w, r, b, user, d, p)
}

// writeGrid renders the loan grid for a mutation response. The request
// body is already consumed, so the filter comes from the parsed form.
func (s *Server) writeGrid(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, user *auth.User, d *core.Dashboard, p *RequestBodyParser) {
	q, status := p.Get("q"), core.ParseStatusFilter(p.Get("status"))
	b.Retarget("#loan-grid").
		Reswap("outerHTML").
		Template(s.templates, "loan_grid", s.buildView(user, d, q, status))
	if err := b.Err(); err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed", "template", "loan_grid", applog.FieldError, err)
	}
	b.Write(w)
}

// mutationFailed keeps the modal open and reports the problem. Input
// problems are shown as-is; anything else is logged and replaced by
// fallback.
func (s *Server) mutationFailed(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status, msg := http.StatusUnprocessableEntity, err.Error()
	var fieldErr *FieldError
	switch {
	case errors.As(err, &fieldErr), isValidationError(err):
	case errors.Is(err, ErrMalformedBody):
		status, msg = http.StatusBadRequest, msgMalformedBody
	case errors.Is(err, store.ErrLoanNotFound):
		status, msg = http.StatusNotFound, "Loan not found"
	default:
		status, msg = http.StatusInternalServerError, fallback
	}

	logger := applog.FromContext(r.Context())
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Mutation failed", applog.FieldPath, r.URL.Path, applog.FieldError, err)
	} else {
		logger.InfoContext(r.Context(), "Mutation rejected", applog.FieldPath, r.URL.Path, applog.FieldError, err)
	}

	if acceptsJSON(r) {
		JSON(w, status, map[string]string{"error": msg})
		return
	}
	MutationFailed(status, msg).Write(w)
}

func acceptsJSON(r *http.Request) bool {
	return r.Header.Get("Accept") == "application/json"
}

func isValidationError(err error) bool {
	for _, target := range []error{
		core.ErrEmptyNickname, core.ErrEmptyBankName, core.ErrNicknameTooLong,
		core.ErrInvalidRate, core.ErrInvalidTerm, core.ErrInvalidAmount,
		core.ErrInvalidFee, core.ErrInvalidPaymentDay, core.ErrEmptyLoanID,
		core.ErrInvalidDate, core.ErrNotesTooLong,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// summaryResponse is the JSON view of the dashboard.
type summaryResponse struct {
	Query  string            `json:"query"`
	Status string            `json:"status"`
	Stats  core.Stats        `json:"stats"`
	Loans  []loanSummaryJSON `json:"loans"`
}

type loanSummaryJSON struct {
	core.Loan
	MonthlyInstallment string  `json:"monthly_installment"`
	TotalPaid          string  `json:"total_paid"`
	RemainingBalance   string  `json:"remaining_balance"`
	PaidMonths         int     `json:"paid_months"`
	RemainingMonths    int     `json:"remaining_months"`
	ProgressPercent    float64 `json:"progress_percent"`
	Status             string  `json:"status"`
	Late               bool    `json:"late"`
	Overdue            bool    `json:"overdue"`
	NextPaymentDate    string  `json:"next_payment_date"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	user := requestUser(r)
	q, status := filterParams(r)
	d, err := s.ledger.LoadDashboard(ctx, user.ID)
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Summary load failed", applog.FieldError, err)
		JSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load loans"})
		return
	}

	view := s.buildView(user, d, q, status)
	resp := summaryResponse{
		Query:  q,
		Status: string(status),
		Stats:  view.Stats,
		Loans:  make([]loanSummaryJSON, 0, len(view.Loans)),
	}
	for _, ls := range view.Loans {
		resp.Loans = append(resp.Loans, loanSummaryJSON{
			Loan:               ls.Loan,
			MonthlyInstallment: ls.MonthlyInstallment.StringFixed(2),
			TotalPaid:          ls.TotalPaid.StringFixed(2),
			RemainingBalance:   ls.RemainingBalance.StringFixed(2),
			PaidMonths:         ls.PaidMonths,
			RemainingMonths:    ls.RemainingMonths,
			ProgressPercent:    ls.ProgressPercent,
			Status:             string(ls.Status),
			Late:               ls.Late,
			Overdue:            ls.Overdue,
			NextPaymentDate:    ls.NextPaymentDate.Format("2006-01-02"),
		})
	}
	JSON(w, http.StatusOK, resp)
}

func dashboardURL(q string, status core.StatusFilter) string {
	v := url.Values{}
	if q != "" {
		v.Set("q", q)
	}
	if status != core.FilterAll {
		v.Set("status", string(status))
	}
	if len(v) == 0 {
		return "/dashboard"
	}
	return "/dashboard?" + v.Encode()
}
