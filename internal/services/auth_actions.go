package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"creditledger/internal/auth"
	applog "creditledger/internal/log"
)

const (
	ResetPath    = "/auth/reset"
	CallbackPath = "/auth/callback"

	msgPasswordMismatch = "Passwords do not match!"
)

// ActionResult is the outcome of an auth action. Exactly one of Error,
// Success or URL is meaningful.
type ActionResult struct {
	Error   string `json:"error,omitempty"`
	Success bool   `json:"success,omitempty"`
	URL     string `json:"url,omitempty"`
	// Session is set when the action signed the user in.
	Session *auth.Session `json:"-"`
}

type (
	LoginForm struct {
		Email    string `label:"Email" validate:"required"`
		Password string `label:"Password" validate:"required"`
	}

	SignupForm struct {
		Email           string `label:"Email" validate:"required"`
		Password        string `label:"Password" validate:"required"`
		ConfirmPassword string `label:"Confirm password" validate:"required"`
		FirstName       string `label:"First name" validate:"required"`
		LastName        string `label:"Last name" validate:"required"`
	}

	ResetPasswordForm struct {
		Token           string `label:"Recovery token" validate:"required"`
		Password        string `label:"Password" validate:"required"`
		ConfirmPassword string `label:"Confirm password" validate:"required"`
	}

	forgotPasswordForm struct {
		Email string `label:"Email" validate:"required"`
	}
)

// AuthActions adapts form submissions to gateway calls. Gateway failures
// are returned verbatim in ActionResult.Error.
type AuthActions struct {
	gateway    auth.Gateway
	siteURL    string
	validate   *validator.Validate
	translator ut.Translator
	log        *applog.StructuredLogger
}

// NewAuthActions builds the actions. siteURL is the public base used for
// the reset and OAuth callback links.
func NewAuthActions(gateway auth.Gateway, siteURL string, logger *applog.Logger) (*AuthActions, error) {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		if label := f.Tag.Get("label"); label != "" {
			return label
		}
		return f.Name
	})

	eng := en.New()
	uni := ut.New(eng, eng)
	translator, found := uni.GetTranslator("en")
	if !found {
		return nil, errors.New("translator not found")
	}
	if err := en_translations.RegisterDefaultTranslations(validate, translator); err != nil {
		return nil, fmt.Errorf("register translations: %w", err)
	}

	return &AuthActions{
		gateway:    gateway,
		siteURL:    strings.TrimSuffix(siteURL, "/"),
		validate:   validate,
		translator: translator,
		log:        applog.NewStructuredLogger(logger.WithComponent(applog.ComponentAuth)),
	}, nil
}

func (a *AuthActions) Login(ctx context.Context, form LoginForm) ActionResult {
	if msg := a.check(form); msg != "" {
		return a.fail(ctx, "login", msg, nil)
	}

	session, err := a.gateway.SignInWithPassword(ctx, form.Email, form.Password)
	if err != nil {
		return a.fail(ctx, "login", "", err)
	}
	a.log.LogAuthAction(ctx, "login", true, nil)
	return ActionResult{Success: true, Session: session}
}

func (a *AuthActions) Signup(ctx context.Context, form SignupForm) ActionResult {
	if msg := a.check(form); msg != "" {
		return a.fail(ctx, "signup", msg, nil)
	}
	if form.Password != form.ConfirmPassword {
		return a.fail(ctx, "signup", msgPasswordMismatch, nil)
	}

	session, err := a.gateway.SignUp(ctx, auth.SignUpParams{
		Email:     form.Email,
		Password:  form.Password,
		FirstName: form.FirstName,
		LastName:  form.LastName,
	})
	if err != nil {
		return a.fail(ctx, "signup", "", err)
	}
	a.log.LogAuthAction(ctx, "signup", true, nil)
	return ActionResult{Success: true, Session: session}
}

func (a *AuthActions) ForgotPassword(ctx context.Context, email string) ActionResult {
	if msg := a.check(forgotPasswordForm{Email: email}); msg != "" {
		return a.fail(ctx, "forgot_password", msg, nil)
	}

	if err := a.gateway.ResetPasswordForEmail(ctx, email, a.siteURL+ResetPath); err != nil {
		return a.fail(ctx, "forgot_password", "", err)
	}
	a.log.LogAuthAction(ctx, "forgot_password", true, nil)
	return ActionResult{Success: true}
}

// GoogleSignIn returns the provider URL the browser should be sent to.
func (a *AuthActions) GoogleSignIn(ctx context.Context) ActionResult {
	url, err := a.gateway.SignInWithOAuth(ctx, auth.ProviderGoogle, a.siteURL+CallbackPath)
	if err != nil {
		return a.fail(ctx, "google_sign_in", "", err)
	}
	a.log.LogAuthAction(ctx, "google_sign_in", true, nil)
	return ActionResult{URL: url}
}

// Logout always succeeds from the user's point of view; a failed
// revocation is only logged.
func (a *AuthActions) Logout(ctx context.Context, accessToken string) ActionResult {
	if accessToken != "" {
		if err := a.gateway.SignOut(ctx, accessToken); err != nil {
			a.log.LogAuthAction(ctx, "logout", false, err)
			return ActionResult{Success: true}
		}
	}
	a.log.LogAuthAction(ctx, "logout", true, nil)
	return ActionResult{Success: true}
}

// ResetPassword completes a recovery started by ForgotPassword and signs
// the user in.
func (a *AuthActions) ResetPassword(ctx context.Context, form ResetPasswordForm) ActionResult {
	if msg := a.check(form); msg != "" {
		return a.fail(ctx, "reset_password", msg, nil)
	}
	if form.Password != form.ConfirmPassword {
		return a.fail(ctx, "reset_password", msgPasswordMismatch, nil)
	}

	session, err := a.gateway.UpdatePassword(ctx, form.Token, form.Password)
	if err != nil {
		return a.fail(ctx, "reset_password", "", err)
	}
	a.log.LogAuthAction(ctx, "reset_password", true, nil)
	return ActionResult{Success: true, Session: session}
}

// check returns the first validation message for form, or "".
func (a *AuthActions) check(form any) string {
	err := a.validate.Struct(form)
	if err == nil {
		return ""
	}
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		return errs[0].Translate(a.translator)
	}
	return err.Error()
}

func (a *AuthActions) fail(ctx context.Context, action, msg string, err error) ActionResult {
	if msg == "" {
		msg = err.Error()
	}
	if err == nil {
		err = errors.New(msg)
	}
	a.log.LogAuthAction(ctx, action, false, err)
	return ActionResult{Error: msg}
}
