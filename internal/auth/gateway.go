// Package auth is the authentication gateway: password and Google sign-in,
// password recovery, and the sessions that guard the dashboard.
package auth

import (
	"context"
	"time"
)

// Provider names accepted by SignInWithOAuth.
const ProviderGoogle = "google"

type (
	// User is the public view of an account.
	User struct {
		ID        string    `json:"id"`
		Email     string    `json:"email"`
		FirstName string    `json:"first_name"`
		LastName  string    `json:"last_name"`
		Provider  string    `json:"provider"`
		CreatedAt time.Time `json:"created_at"`
	}

	// Session is an issued access token and the user it authenticates.
	Session struct {
		AccessToken string    `json:"access_token"`
		ExpiresAt   time.Time `json:"expires_at"`
		User        User      `json:"user"`
	}

	SignUpParams struct {
		Email     string
		Password  string
		FirstName string
		LastName  string
	}
)

// DisplayName is the user's full name, or the email when no name is known.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}

// Event is an auth state transition delivered to OnAuthStateChange listeners.
type Event string

const (
	EventSignedIn         Event = "SIGNED_IN"
	EventSignedOut        Event = "SIGNED_OUT"
	EventUserUpdated      Event = "USER_UPDATED"
	EventPasswordRecovery Event = "PASSWORD_RECOVERY"
)

// StateChangeFunc receives auth events. session is nil for EventSignedOut
// and EventPasswordRecovery.
type StateChangeFunc func(event Event, session *Session)

// Gateway is everything the web layer needs from the auth backend. All
// failures are *Error values whose message can be shown to the user.
type Gateway interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, params SignUpParams) (*Session, error)
	// ResetPasswordForEmail sends a recovery link pointing at redirectTo.
	// Unknown addresses succeed silently.
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	// UpdatePassword redeems a recovery token and signs the user in.
	UpdatePassword(ctx context.Context, recoveryToken, newPassword string) (*Session, error)
	// SignInWithOAuth returns the provider URL to send the browser to;
	// the provider returns to redirectTo with code and state.
	SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error)
	ExchangeCodeForSession(ctx context.Context, code, state string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*User, error)
	GetSession(ctx context.Context, accessToken string) (*Session, error)
	// OnAuthStateChange registers fn and returns a function that removes it.
	OnAuthStateChange(fn StateChangeFunc) (unsubscribe func())
}
