package auth

// Error is a gateway failure. Error() returns only Message, which is safe
// to show to the user; Err keeps the underlying cause for logs.
type Error struct {
	Code    string
	Message string
	Err     error
}

var (
	ErrInvalidCredentials    = newError("invalid_credentials", "Invalid login credentials")
	ErrUserAlreadyRegistered = newError("user_already_exists", "User already registered")
	ErrWeakPassword          = newError("weak_password", "Password should be at least 6 characters.")
	ErrInvalidEmail          = newError("email_address_invalid", "Unable to validate email address: invalid format")
	ErrSessionMissing        = newError("session_not_found", "Auth session missing!")
	ErrRecoveryTokenInvalid  = newError("otp_expired", "Token has expired or is invalid")
	ErrUnsupportedProvider   = newError("unsupported_provider", "Unsupported provider: provider is not supported")
	ErrProviderDisabled      = newError("provider_disabled", "Unsupported provider: provider is not enabled")
	ErrMissingCode           = newError("missing_code", "No authorization code was provided")
	ErrInvalidOAuthState     = newError("bad_oauth_state", "OAuth state parameter is invalid or expired")
	ErrOAuthExchange         = newError("oauth_exchange_failed", "Unable to exchange external code")
	ErrUnexpected            = newError("unexpected_failure", "Unexpected failure, please try again")
)

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code so wrapped copies compare equal to the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithError returns a copy of e carrying err as its cause.
func (e *Error) WithError(err error) *Error {
	clone := *e
	clone.Err = err
	return &clone
}
