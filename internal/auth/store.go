package auth

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrTokenNotFound   = errors.New("recovery token not found")
)

type (
	// UserRecord is a stored account including its password hash.
	UserRecord struct {
		User
		PasswordHash string
	}

	// SessionRecord backs an issued access token; the token's jti is the ID.
	SessionRecord struct {
		ID        string
		UserID    string
		CreatedAt time.Time
		ExpiresAt time.Time
		RevokedAt *time.Time
	}

	// RecoveryToken authorizes one password change.
	RecoveryToken struct {
		Token     string
		UserID    string
		CreatedAt time.Time
		ExpiresAt time.Time
		UsedAt    *time.Time
	}
)

// Active reports whether the session can still authenticate requests.
func (s SessionRecord) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// UserStore persists accounts, sessions and recovery tokens.
type UserStore interface {
	// CreateUser returns ErrUserExists if the email is taken.
	CreateUser(ctx context.Context, u UserRecord) error
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, id string) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error

	CreateSession(ctx context.Context, s SessionRecord) error
	GetSession(ctx context.Context, id string) (SessionRecord, error)
	RevokeSession(ctx context.Context, id string, at time.Time) error

	CreateRecoveryToken(ctx context.Context, t RecoveryToken) error
	// ConsumeRecoveryToken marks an unused, unexpired token as used and
	// returns it, or ErrTokenNotFound.
	ConsumeRecoveryToken(ctx context.Context, token string, now time.Time) (RecoveryToken, error)
}
