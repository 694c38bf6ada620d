package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"creditledger/internal/auth"
	applog "creditledger/internal/log"
	"creditledger/internal/middleware/authguard"
	"creditledger/internal/services"
)

// Auth page modes; each shows one form.
const (
	modeLogin  = "login"
	modeSignup = "signup"
	modeForgot = "forgot"
)

type authPageData struct {
	Mode    string
	Error   string
	Message string
	Email   string
}

type resetPageData struct {
	Token string
	Error string
}

// modeFor picks the form to show again after a failed post.
func modeFor(path string) string {
	switch {
	case strings.HasSuffix(path, "/signup"):
		return modeSignup
	case strings.HasSuffix(path, "/forgot-password"):
		return modeForgot
	default:
		return modeLogin
	}
}

func (s *Server) handleAuthPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("mode")
	if mode != modeSignup && mode != modeForgot {
		mode = modeLogin
	}
	s.render(w, r, http.StatusOK, "auth_page", authPageData{
		Mode:  mode,
		Error: sanitizeInput(q.Get("error")),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	form := services.LoginForm{
		Email:    FormValue(r, "email"),
		Password: r.FormValue("password"),
	}
	res := s.actions.Login(ctx, form)
	s.finishSignIn(w, r, res, authPageData{Mode: modeLogin, Email: form.Email})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	form := services.SignupForm{
		Email:           FormValue(r, "email"),
		Password:        r.FormValue("password"),
		ConfirmPassword: r.FormValue("confirmPassword"),
		FirstName:       FormValue(r, "firstName"),
		LastName:        FormValue(r, "lastName"),
	}
	res := s.actions.Signup(ctx, form)
	if res.Error == "" && res.Session == nil {
		// the gateway wants the address confirmed before the first sign-in
		s.authNotice(w, r, authPageData{Mode: modeLogin, Email: form.Email, Message: "Account created successfully!"})
		return
	}
	s.finishSignIn(w, r, res, authPageData{Mode: modeSignup, Email: form.Email})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	email := FormValue(r, "email")
	res := s.actions.ForgotPassword(ctx, email)
	if res.Error != "" {
		s.authFailed(w, r, authPageData{Mode: modeForgot, Email: email, Error: res.Error})
		return
	}
	s.authNotice(w, r, authPageData{Mode: modeLogin, Email: email, Message: "Password reset email sent!"})
}

func (s *Server) handleGoogleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	res := s.actions.GoogleSignIn(ctx)
	if res.Error != "" {
		s.authFailed(w, r, authPageData{Mode: modeLogin, Error: res.Error})
		return
	}
	authguard.Redirect(w, r, res.URL)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	token := ""
	if c, err := r.Cookie(authguard.CookieName); err == nil {
		token = c.Value
	}
	s.actions.Logout(ctx, token)
	authguard.ClearSessionCookie(w, r)
	authguard.Redirect(w, r, authguard.LoginPath)
}

// handleCallback completes Google sign-in. Any failure sends the browser
// back to the auth page with the reason instead of to a dashboard the
// guard would bounce anyway.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if providerErr := q.Get("error"); providerErr != "" {
		reason := q.Get("error_description")
		if reason == "" {
			reason = providerErr
		}
		s.callbackFailed(w, r, reason, nil)
		return
	}

	code := q.Get("code")
	if code == "" {
		s.callbackFailed(w, r, auth.ErrMissingCode.Message, nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	session, err := s.gateway.ExchangeCodeForSession(ctx, code, q.Get("state"))
	if err != nil {
		s.callbackFailed(w, r, err.Error(), err)
		return
	}

	authguard.SetSessionCookie(w, r, session)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) callbackFailed(w http.ResponseWriter, r *http.Request, reason string, err error) {
	s.logger.WarnContext(r.Context(), "OAuth callback failed",
		applog.FieldAction, "oauth_callback",
		"reason", reason,
		applog.FieldError, err)
	http.Redirect(w, r, authguard.LoginPath+"?error="+url.QueryEscape(reason), http.StatusSeeOther)
}

func (s *Server) handleResetPage(w http.ResponseWriter, r *http.Request) {
	token := sanitizeInput(r.URL.Query().Get("token"))
	data := resetPageData{Token: token}
	if token == "" {
		data.Error = auth.ErrRecoveryTokenInvalid.Message
	}
	s.render(w, r, http.StatusOK, "reset_page", data)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), remoteTimeout)
	defer cancel()

	form := services.ResetPasswordForm{
		Token:           FormValue(r, "token"),
		Password:        r.FormValue("password"),
		ConfirmPassword: r.FormValue("confirmPassword"),
	}
	res := s.actions.ResetPassword(ctx, form)
	if res.Error != "" {
		if isHTMX(r) {
			MutationFailed(http.StatusUnprocessableEntity, res.Error).Write(w)
			return
		}
		s.render(w, r, http.StatusUnprocessableEntity, "reset_page", resetPageData{Token: form.Token, Error: res.Error})
		return
	}
	if res.Session != nil {
		authguard.SetSessionCookie(w, r, res.Session)
	}
	authguard.Redirect(w, r, "/dashboard")
}

// finishSignIn sets the session cookie and leaves for the dashboard, or
// shows the failure on the form the user came from.
func (s *Server) finishSignIn(w http.ResponseWriter, r *http.Request, res services.ActionResult, page authPageData) {
	if res.Error != "" {
		page.Error = res.Error
		s.authFailed(w, r, page)
		return
	}
	if res.Session != nil {
		authguard.SetSessionCookie(w, r, res.Session)
	}
	authguard.Redirect(w, r, "/dashboard")
}

func (s *Server) authFailed(w http.ResponseWriter, r *http.Request, page authPageData) {
	if isHTMX(r) {
		MutationFailed(http.StatusUnprocessableEntity, page.Error).Write(w)
		return
	}
	s.render(w, r, http.StatusUnprocessableEntity, "auth_page", page)
}

func (s *Server) authNotice(w http.ResponseWriter, r *http.Request, page authPageData) {
	if isHTMX(r) {
		NewHTMXResponse().Reswap("none").TriggerSuccessNotification(page.Message).Write(w)
		return
	}
	s.render(w, r, http.StatusOK, "auth_page", page)
}
