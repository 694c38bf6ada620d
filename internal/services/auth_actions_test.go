package services

import (
	"context"
	"testing"

	"creditledger/internal/auth"
)

type fakeGateway struct {
	auth.Gateway // unused methods panic

	err error

	gotEmail, gotPassword, gotRedirect, gotToken string
	gotSignUp                                    auth.SignUpParams
	signedOut                                    string
}

func (g *fakeGateway) SignInWithPassword(_ context.Context, email, password string) (*auth.Session, error) {
	g.gotEmail, g.gotPassword = email, password
	if g.err != nil {
		return nil, g.err
	}
	return &auth.Session{AccessToken: "tok"}, nil
}

func (g *fakeGateway) SignUp(_ context.Context, p auth.SignUpParams) (*auth.Session, error) {
	g.gotSignUp = p
	if g.err != nil {
		return nil, g.err
	}
	return &auth.Session{AccessToken: "tok"}, nil
}

func (g *fakeGateway) ResetPasswordForEmail(_ context.Context, email, redirectTo string) error {
	g.gotEmail, g.gotRedirect = email, redirectTo
	return g.err
}

func (g *fakeGateway) UpdatePassword(_ context.Context, token, password string) (*auth.Session, error) {
	g.gotToken, g.gotPassword = token, password
	if g.err != nil {
		return nil, g.err
	}
	return &auth.Session{AccessToken: "tok"}, nil
}

func (g *fakeGateway) SignInWithOAuth(_ context.Context, provider, redirectTo string) (string, error) {
	g.gotRedirect = redirectTo
	if g.err != nil {
		return "", g.err
	}
	return "https://accounts.google.com/o/oauth2/auth?provider=" + provider, nil
}

func (g *fakeGateway) SignOut(_ context.Context, accessToken string) error {
	g.signedOut = accessToken
	return g.err
}

func newActions(t *testing.T, g auth.Gateway) *AuthActions {
	t.Helper()
	a, err := NewAuthActions(g, "https://ledger.example.com/", nil)
	if err != nil {
		t.Fatalf("NewAuthActions() error = %v", err)
	}
	return a
}

func TestAuthActions_Login(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		form      LoginForm
		gwErr     error
		wantError string
	}{
		{"success", LoginForm{Email: "ana@example.com", Password: "secret1"}, nil, ""},
		{"missing email", LoginForm{Password: "secret1"}, nil, "Email is a required field"},
		{"missing password", LoginForm{Email: "ana@example.com"}, nil, "Password is a required field"},
		{"gateway message verbatim", LoginForm{Email: "ana@example.com", Password: "bad"}, auth.ErrInvalidCredentials, "Invalid login credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGateway{err: tt.gwErr}
			res := newActions(t, g).Login(ctx, tt.form)

			if res.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", res.Error, tt.wantError)
			}
			if tt.wantError == "" {
				if !res.Success || res.Session == nil {
					t.Errorf("Login() = %+v, want success with session", res)
				}
				if g.gotEmail != tt.form.Email {
					t.Errorf("gateway got email %q", g.gotEmail)
				}
			}
		})
	}
}

func TestAuthActions_Signup(t *testing.T) {
	ctx := context.Background()
	form := SignupForm{
		Email:           "ana@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		FirstName:       "Ana",
		LastName:        "Reyes",
	}

	t.Run("success forwards names", func(t *testing.T) {
		g := &fakeGateway{}
		res := newActions(t, g).Signup(ctx, form)
		if !res.Success {
			t.Fatalf("Signup() = %+v", res)
		}
		if g.gotSignUp.FirstName != "Ana" || g.gotSignUp.LastName != "Reyes" {
			t.Errorf("gateway got %+v", g.gotSignUp)
		}
	})

	t.Run("password mismatch is checked locally", func(t *testing.T) {
		g := &fakeGateway{}
		bad := form
		bad.ConfirmPassword = "other"
		res := newActions(t, g).Signup(ctx, bad)
		if res.Error != "Passwords do not match!" {
			t.Errorf("Error = %q", res.Error)
		}
		if g.gotSignUp.Email != "" {
			t.Error("gateway should not be called on mismatch")
		}
	})

	t.Run("missing last name", func(t *testing.T) {
		bad := form
		bad.LastName = ""
		res := newActions(t, &fakeGateway{}).Signup(ctx, bad)
		if res.Error != "Last name is a required field" {
			t.Errorf("Error = %q", res.Error)
		}
	})

	t.Run("already registered", func(t *testing.T) {
		res := newActions(t, &fakeGateway{err: auth.ErrUserAlreadyRegistered}).Signup(ctx, form)
		if res.Error != "User already registered" {
			t.Errorf("Error = %q", res.Error)
		}
	})
}

func TestAuthActions_ForgotPassword(t *testing.T) {
	g := &fakeGateway{}
	res := newActions(t, g).ForgotPassword(context.Background(), "ana@example.com")
	if !res.Success {
		t.Fatalf("ForgotPassword() = %+v", res)
	}
	if g.gotRedirect != "https://ledger.example.com/auth/reset" {
		t.Errorf("redirect = %q", g.gotRedirect)
	}

	res = newActions(t, &fakeGateway{}).ForgotPassword(context.Background(), "")
	if res.Error != "Email is a required field" {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestAuthActions_GoogleSignIn(t *testing.T) {
	g := &fakeGateway{}
	res := newActions(t, g).GoogleSignIn(context.Background())
	if res.URL == "" || res.Error != "" {
		t.Fatalf("GoogleSignIn() = %+v", res)
	}
	if g.gotRedirect != "https://ledger.example.com/auth/callback" {
		t.Errorf("redirect = %q", g.gotRedirect)
	}

	res = newActions(t, &fakeGateway{err: auth.ErrProviderDisabled}).GoogleSignIn(context.Background())
	if res.Error != auth.ErrProviderDisabled.Message {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestAuthActions_Logout(t *testing.T) {
	g := &fakeGateway{err: auth.ErrSessionMissing}
	res := newActions(t, g).Logout(context.Background(), "tok")
	if !res.Success {
		t.Error("Logout() should succeed even when revocation fails")
	}
	if g.signedOut != "tok" {
		t.Errorf("signed out %q", g.signedOut)
	}
}

func TestAuthActions_ResetPassword(t *testing.T) {
	ctx := context.Background()

	g := &fakeGateway{}
	res := newActions(t, g).ResetPassword(ctx, ResetPasswordForm{Token: "t1", Password: "newpass", ConfirmPassword: "newpass"})
	if !res.Success || res.Session == nil {
		t.Fatalf("ResetPassword() = %+v", res)
	}
	if g.gotToken != "t1" {
		t.Errorf("token = %q", g.gotToken)
	}

	res = newActions(t, &fakeGateway{}).ResetPassword(ctx, ResetPasswordForm{Token: "t1", Password: "a", ConfirmPassword: "b"})
	if res.Error != "Passwords do not match!" {
		t.Errorf("Error = %q", res.Error)
	}

	res = newActions(t, &fakeGateway{err: auth.ErrRecoveryTokenInvalid}).ResetPassword(ctx, ResetPasswordForm{Token: "t1", Password: "newpass", ConfirmPassword: "newpass"})
	if res.Error != "Token has expired or is invalid" {
		t.Errorf("Error = %q", res.Error)
	}
}
