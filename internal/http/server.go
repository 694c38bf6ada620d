package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"creditledger/internal/auth"
	"creditledger/internal/core"
	applog "creditledger/internal/log"
	"creditledger/internal/middleware/authguard"
	"creditledger/internal/middleware/ratelimit"
	"creditledger/internal/middleware/security"
	"creditledger/internal/middleware/trace"
	"creditledger/internal/services"
	appweb "creditledger/web"
)

// remoteTimeout bounds every call a handler makes to the store or the
// auth gateway.
const remoteTimeout = 7 * time.Second

var errTemplatesNotLoaded = errors.New("templates not loaded")

// Ledger is the slice of services.LedgerService the handlers use.
type Ledger interface {
	LoadDashboard(ctx context.Context, userID string) (*core.Dashboard, error)
	AddLoan(ctx context.Context, userID string, n core.NewLoan) (core.Loan, error)
	RecordPayment(ctx context.Context, userID string, n core.NewPayment) (core.Payment, error)
	LoanDetails(ctx context.Context, userID, loanID string) (core.LoanSummary, error)
}

// AuthActions is the slice of services.AuthActions the handlers use.
type AuthActions interface {
	Login(ctx context.Context, form services.LoginForm) services.ActionResult
	Signup(ctx context.Context, form services.SignupForm) services.ActionResult
	ForgotPassword(ctx context.Context, email string) services.ActionResult
	GoogleSignIn(ctx context.Context) services.ActionResult
	Logout(ctx context.Context, accessToken string) services.ActionResult
	ResetPassword(ctx context.Context, form services.ResetPasswordForm) services.ActionResult
}

// Deps are the collaborators a Server is built from. Ready may be nil.
type Deps struct {
	Ledger  Ledger
	Actions AuthActions
	Gateway auth.Gateway
	Ready   func(ctx context.Context) error
	Logger  *applog.Logger
	// AuthRateLimit overrides the per-client limit on auth form posts.
	AuthRateLimit ratelimit.Config
	Now           func() time.Time
}

// Server is the web front end: auth pages, the guarded dashboard and its
// htmx partials.
type Server struct {
	http.Server

	router    *mux.Router
	templates *template.Template
	ledger    Ledger
	actions   AuthActions
	gateway   auth.Gateway
	ready     func(ctx context.Context) error
	logger    *applog.Logger

	detector *security.Detector
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	guard    *authguard.Guard

	startedAt time.Time
	now       func() time.Time
}

func NewServer(addr string, deps Deps) (*Server, error) {
	if deps.Ledger == nil || deps.Actions == nil || deps.Gateway == nil {
		return nil, errors.New("http: ledger, auth actions and gateway are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	// Parse embedded templates at startup.
	t, err := template.New("").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		router:    mux.NewRouter(),
		templates: t,
		ledger:    deps.Ledger,
		actions:   deps.Actions,
		gateway:   deps.Gateway,
		ready:     deps.Ready,
		logger:    logger.WithComponent(applog.ComponentHTTP),
		detector:  security.NewDetector(logger),
		limiter:   ratelimit.NewLimiter(deps.AuthRateLimit),
		guard:     authguard.New(deps.Gateway, logger, "/dashboard"),
		startedAt: now(),
		now:       now,
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ClientIP)

	if err := s.routes(); err != nil {
		s.limiter.Stop()
		return nil, err
	}

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var h http.Handler = s.router
	h = headers.Middleware(h)
	h = s.detector.Middleware(h)
	h = applog.RequestIDMiddleware(trace.RequestID)(h)
	h = applog.Middleware(logger)(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() error {
	r := s.router

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	}).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	// Static assets (served from embedded FS)
	sub, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("mount static assets: %w", err)
	}
	static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
	r.PathPrefix("/static/").Handler(security.StaticAssetMiddleware(3600)(static)).Methods(http.MethodGet)

	r.HandleFunc("/auth", s.handleAuthPage).Methods(http.MethodGet)
	r.HandleFunc(services.CallbackPath, s.handleCallback).Methods(http.MethodGet)
	r.HandleFunc(services.ResetPath, s.handleResetPage).Methods(http.MethodGet)

	// credential endpoints are throttled per client
	authPosts := r.PathPrefix("/auth").Methods(http.MethodPost).Subrouter()
	authPosts.Use(s.limiter.Middleware(s.detector.ClientIP, s.handleRateLimited))
	authPosts.HandleFunc("/login", s.handleLogin)
	authPosts.HandleFunc("/signup", s.handleSignup)
	authPosts.HandleFunc("/forgot-password", s.handleForgotPassword)
	authPosts.HandleFunc("/google", s.handleGoogleSignIn)
	authPosts.HandleFunc("/logout", s.handleLogout)
	authPosts.HandleFunc("/reset", s.handleResetPassword)

	dash := r.PathPrefix("/dashboard").Subrouter()
	dash.Use(s.guard.Middleware)
	dash.HandleFunc("", s.handleDashboard).Methods(http.MethodGet)
	dash.HandleFunc("/loans", s.handleLoanGrid).Methods(http.MethodGet)
	dash.HandleFunc("/loans", s.handleCreateLoan).Methods(http.MethodPost)
	dash.HandleFunc("/loans/new", s.handleNewLoanModal).Methods(http.MethodGet)
	dash.HandleFunc("/loans/{id}", s.handleLoanDetails).Methods(http.MethodGet)
	dash.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	dash.HandleFunc("/payments", s.handleRecordPayment).Methods(http.MethodPost)
	dash.HandleFunc("/payments/new", s.handleNewPaymentModal).Methods(http.MethodGet)
	dash.HandleFunc("/api/summary", s.handleSummary).Methods(http.MethodGet)

	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones and stops
// background work.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}

// render writes a full page or partial. Template errors are logged and
// answered with 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	b := NewHTMXResponse().Status(status).Template(s.templates, name, data)
	if err := b.Err(); err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed",
			"template", name,
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err)
	}
	b.Write(w)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	const msg = "Too many attempts. Please wait a minute and try again."
	s.logger.WarnContext(r.Context(), "Auth rate limit exceeded",
		applog.FieldPath, r.URL.Path,
		applog.FieldClientIP, s.detector.ClientIP(r))
	if isHTMX(r) {
		MutationFailed(http.StatusTooManyRequests, msg).Write(w)
		return
	}
	s.render(w, r, http.StatusTooManyRequests, "auth_page", authPageData{Mode: modeFor(r.URL.Path), Error: msg})
}
