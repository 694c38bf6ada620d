package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
)

// OAuthUserInfo is the identity asserted by a provider's ID token.
type OAuthUserInfo struct {
	Email      string
	GivenName  string
	FamilyName string
}

// OAuthProvider runs the authorization-code flow against one provider.
type OAuthProvider interface {
	AuthURL(state, redirectURL string) string
	// ExchangeCode trades an authorization code for the provider's ID token.
	ExchangeCode(ctx context.Context, code, redirectURL string) (string, error)
	VerifyToken(ctx context.Context, idToken string) (*OAuthUserInfo, error)
}

type GoogleProvider struct {
	config   *oauth2.Config
	clientID string
}

func NewGoogleProvider(clientID, clientSecret string) (*GoogleProvider, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("google oauth: client id and secret are required")
	}
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		},
		clientID: clientID,
	}, nil
}

func (g *GoogleProvider) AuthURL(state, redirectURL string) string {
	return g.config.AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("redirect_uri", redirectURL),
		oauth2.SetAuthURLParam("prompt", "select_account"))
}

func (g *GoogleProvider) ExchangeCode(ctx context.Context, code, redirectURL string) (string, error) {
	token, err := g.config.Exchange(ctx, code, oauth2.SetAuthURLParam("redirect_uri", redirectURL))
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}

	idToken, ok := token.Extra("id_token").(string)
	if !ok || idToken == "" {
		return "", fmt.Errorf("id_token missing from token response")
	}
	return idToken, nil
}

func (g *GoogleProvider) VerifyToken(ctx context.Context, idToken string) (*OAuthUserInfo, error) {
	payload, err := idtoken.Validate(ctx, idToken, g.clientID)
	if err != nil {
		return nil, fmt.Errorf("validate id token: %w", err)
	}

	email, ok := payload.Claims["email"].(string)
	if !ok || email == "" {
		return nil, fmt.Errorf("email claim missing from id token")
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok && !verified {
		return nil, fmt.Errorf("google account email %s is not verified", email)
	}

	given, _ := payload.Claims["given_name"].(string)
	family, _ := payload.Claims["family_name"].(string)

	return &OAuthUserInfo{
		Email:      email,
		GivenName:  given,
		FamilyName: family,
	}, nil
}

// GenerateState returns a random value binding an OAuth round trip to the
// attempt that started it.
func GenerateState() (string, error) {
	return randomString(32)
}

// generateSecurePassword fills the password of accounts created through
// OAuth, which never sign in with it.
func generateSecurePassword() (string, error) {
	return randomString(32)
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
