package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"creditledger/internal/cache"
)

const (
	minPasswordLength = 6
	// bcrypt ignores input past 72 bytes
	maxPasswordLength = 72

	recoveryTokenTTL = time.Hour
	oauthStateTTL    = 10 * time.Minute
	maxPendingOAuth  = 1000
)

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Options configures a Service. SigningKey is required.
type Options struct {
	SigningKey []byte
	SessionTTL time.Duration
	// Issuer is the public base URL of the gateway, recorded in tokens.
	Issuer string
	// Google enables ProviderGoogle when non-nil.
	Google OAuthProvider
	Mailer Mailer
	// OAuthStates holds pending OAuth attempts keyed by state. Defaults to
	// an in-process LRU cache.
	OAuthStates cache.Cache[string]
	Logger      *slog.Logger
	Now         func() time.Time
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// Service is the self-hosted Gateway: bcrypt password hashes, HS256 session
// tokens whose jti is backed by a revocable session row, and Google OAuth.
type Service struct {
	store      UserStore
	key        []byte
	ttl        time.Duration
	issuer     string
	google     OAuthProvider
	mailer     Mailer
	states     cache.Cache[string]
	logger     *slog.Logger
	now        func() time.Time
	bcryptCost int

	mu        sync.RWMutex
	listeners map[int]StateChangeFunc
	nextID    int
}

var _ Gateway = (*Service)(nil)

func NewService(store UserStore, opts Options) (*Service, error) {
	if len(opts.SigningKey) == 0 {
		return nil, fmt.Errorf("auth: signing key is required")
	}
	s := &Service{
		store:      store,
		key:        opts.SigningKey,
		ttl:        opts.SessionTTL,
		issuer:     opts.Issuer,
		google:     opts.Google,
		mailer:     opts.Mailer,
		states:     opts.OAuthStates,
		logger:     opts.Logger,
		now:        opts.Now,
		bcryptCost: bcrypt.DefaultCost,
		listeners:  make(map[int]StateChangeFunc),
	}
	if s.ttl <= 0 {
		s.ttl = 24 * time.Hour
	}
	if s.mailer == nil {
		s.mailer = LogMailer{Logger: opts.Logger}
	}
	if s.states == nil {
		s.states = cache.NewLRUCache[string](maxPendingOAuth, oauthStateTTL)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.BcryptCost != 0 {
		s.bcryptCost = opts.BcryptCost
	}
	return s, nil
}

func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	rec, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, ErrUnexpected.WithError(fmt.Errorf("get user: %w", err))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	session, err := s.issueSession(ctx, rec.User)
	if err != nil {
		return nil, err
	}
	s.emit(EventSignedIn, session)
	return session, nil
}

func (s *Service) SignUp(ctx context.Context, params SignUpParams) (*Session, error) {
	email := normalizeEmail(params.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	hash, err := s.hashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	rec := UserRecord{
		User: User{
			ID:        ulid.Make().String(),
			Email:     email,
			FirstName: strings.TrimSpace(params.FirstName),
			LastName:  strings.TrimSpace(params.LastName),
			Provider:  "email",
			CreatedAt: s.now().UTC(),
		},
		PasswordHash: hash,
	}
	if err := s.store.CreateUser(ctx, rec); err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil, ErrUserAlreadyRegistered
		}
		return nil, ErrUnexpected.WithError(fmt.Errorf("create user: %w", err))
	}

	session, err := s.issueSession(ctx, rec.User)
	if err != nil {
		return nil, err
	}
	s.emit(EventSignedIn, session)
	return session, nil
}

func (s *Service) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmail
	}

	rec, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		s.logger.InfoContext(ctx, "Password reset for unknown email ignored", "component", "auth")
		return nil
	}
	if err != nil {
		return ErrUnexpected.WithError(fmt.Errorf("get user: %w", err))
	}

	now := s.now().UTC()
	token := RecoveryToken{
		Token:     uuid.NewString(),
		UserID:    rec.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(recoveryTokenTTL),
	}
	if err := s.store.CreateRecoveryToken(ctx, token); err != nil {
		return ErrUnexpected.WithError(fmt.Errorf("create recovery token: %w", err))
	}

	link, err := withQuery(redirectTo, "token", token.Token)
	if err != nil {
		return ErrUnexpected.WithError(err)
	}
	if err := s.mailer.SendPasswordReset(ctx, rec.Email, link); err != nil {
		return ErrUnexpected.WithError(fmt.Errorf("send reset email: %w", err))
	}
	return nil
}

func (s *Service) UpdatePassword(ctx context.Context, recoveryToken, newPassword string) (*Session, error) {
	// validate first so a rejected password does not burn the token
	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	token, err := s.store.ConsumeRecoveryToken(ctx, recoveryToken, s.now().UTC())
	if errors.Is(err, ErrTokenNotFound) {
		return nil, ErrRecoveryTokenInvalid
	}
	if err != nil {
		return nil, ErrUnexpected.WithError(fmt.Errorf("consume recovery token: %w", err))
	}
	s.emit(EventPasswordRecovery, nil)

	if err := s.store.UpdatePasswordHash(ctx, token.UserID, hash); err != nil {
		return nil, ErrUnexpected.WithError(fmt.Errorf("update password: %w", err))
	}
	rec, err := s.store.GetUserByID(ctx, token.UserID)
	if err != nil {
		return nil, ErrUnexpected.WithError(fmt.Errorf("get user: %w", err))
	}

	session, err := s.issueSession(ctx, rec.User)
	if err != nil {
		return nil, err
	}
	s.emit(EventUserUpdated, session)
	return session, nil
}

func (s *Service) SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error) {
	if provider != ProviderGoogle {
		return "", ErrUnsupportedProvider
	}
	if s.google == nil {
		return "", ErrProviderDisabled
	}

	state, err := GenerateState()
	if err != nil {
		return "", ErrUnexpected.WithError(fmt.Errorf("generate state: %w", err))
	}
	s.states.Set(state, redirectTo)
	return s.google.AuthURL(state, redirectTo), nil
}

func (s *Service) ExchangeCodeForSession(ctx context.Context, code, state string) (*Session, error) {
	if code == "" {
		return nil, ErrMissingCode
	}
	if s.google == nil {
		return nil, ErrProviderDisabled
	}
	redirectTo, ok := s.states.Take(state)
	if !ok {
		return nil, ErrInvalidOAuthState
	}

	idToken, err := s.google.ExchangeCode(ctx, code, redirectTo)
	if err != nil {
		return nil, ErrOAuthExchange.WithError(err)
	}
	info, err := s.google.VerifyToken(ctx, idToken)
	if err != nil {
		return nil, ErrOAuthExchange.WithError(err)
	}

	user, err := s.findOrCreateOAuthUser(ctx, info)
	if err != nil {
		return nil, err
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	s.emit(EventSignedIn, session)
	return session, nil
}

func (s *Service) findOrCreateOAuthUser(ctx context.Context, info *OAuthUserInfo) (User, error) {
	email := normalizeEmail(info.Email)
	rec, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return rec.User, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, ErrUnexpected.WithError(fmt.Errorf("get user: %w", err))
	}

	password, err := generateSecurePassword()
	if err != nil {
		return User{}, ErrUnexpected.WithError(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return User{}, ErrUnexpected.WithError(err)
	}

	rec = UserRecord{
		User: User{
			ID:        ulid.Make().String(),
			Email:     email,
			FirstName: info.GivenName,
			LastName:  info.FamilyName,
			Provider:  ProviderGoogle,
			CreatedAt: s.now().UTC(),
		},
		PasswordHash: string(hash),
	}
	if err := s.store.CreateUser(ctx, rec); err != nil {
		return User{}, ErrUnexpected.WithError(fmt.Errorf("create oauth user: %w", err))
	}
	s.logger.InfoContext(ctx, "Created account from Google sign-in", "component", "auth", "user_id", rec.ID)
	return rec.User, nil
}

func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	claims, err := s.parse(accessToken, jwt.WithoutClaimsValidation())
	if err != nil {
		// an unreadable token has no session left to end
		s.emit(EventSignedOut, nil)
		return nil
	}
	if err := s.store.RevokeSession(ctx, claims.ID, s.now().UTC()); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return ErrUnexpected.WithError(fmt.Errorf("revoke session: %w", err))
	}
	s.emit(EventSignedOut, nil)
	return nil
}

func (s *Service) GetUser(ctx context.Context, accessToken string) (*User, error) {
	session, err := s.GetSession(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return &session.User, nil
}

func (s *Service) GetSession(ctx context.Context, accessToken string) (*Session, error) {
	if accessToken == "" {
		return nil, ErrSessionMissing
	}
	claims, err := s.parse(accessToken, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrSessionMissing.WithError(err)
	}

	rec, err := s.store.GetSession(ctx, claims.ID)
	if err != nil {
		return nil, ErrSessionMissing.WithError(err)
	}
	if rec.UserID != claims.Subject || !rec.Active(s.now()) {
		return nil, ErrSessionMissing
	}

	user, err := s.store.GetUserByID(ctx, rec.UserID)
	if err != nil {
		return nil, ErrSessionMissing.WithError(err)
	}
	return &Session{
		AccessToken: accessToken,
		ExpiresAt:   rec.ExpiresAt,
		User:        user.User,
	}, nil
}

func (s *Service) OnAuthStateChange(fn StateChangeFunc) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Service) emit(event Event, session *Session) {
	s.mu.RLock()
	fns := make([]StateChangeFunc, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(event, session)
	}
}

func (s *Service) issueSession(ctx context.Context, user User) (*Session, error) {
	now := s.now().UTC()
	rec := SessionRecord{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.CreateSession(ctx, rec); err != nil {
		return nil, ErrUnexpected.WithError(fmt.Errorf("create session: %w", err))
	}

	claims := sessionClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        rec.ID,
			Subject:   user.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(rec.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return nil, ErrUnexpected.WithError(fmt.Errorf("sign token: %w", err))
	}

	return &Session{AccessToken: signed, ExpiresAt: rec.ExpiresAt, User: user}, nil
}

func (s *Service) parse(token string, opts ...jwt.ParserOption) (*sessionClaims, error) {
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, errors.New("token missing session claims")
	}
	return claims, nil
}

func (s *Service) hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrWeakPassword
	}
	if len(password) > maxPasswordLength {
		return "", newError("weak_password", "Password cannot be longer than 72 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", ErrUnexpected.WithError(err)
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func withQuery(raw, key, value string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse redirect url: %w", err)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
