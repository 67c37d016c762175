package security

import "errors"

var (
	// ErrInvalidCost is returned when the bcrypt cost falls outside the supported range.
	ErrInvalidCost = errors.New("bcrypt cost must be between 4 and 31")
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrPasswordTooLong is returned when a password exceeds the 72 bytes bcrypt can use.
	ErrPasswordTooLong = errors.New("password must not exceed 72 bytes")

	// ErrMissingSecret is returned when the token signing secret is blank.
	ErrMissingSecret = errors.New("token signing secret is not configured")
	// ErrInvalidLifetime is returned when a token lifetime is not positive.
	ErrInvalidLifetime = errors.New("token lifetime must be positive")
	// ErrEmptyIdentity is returned when a token is requested for an empty identity.
	ErrEmptyIdentity = errors.New("token identity must not be empty")
	// ErrInvalidToken is returned when a token cannot be parsed or fails signature checks.
	ErrInvalidToken = errors.New("token is invalid")
	// ErrTokenExpired is returned when a token is past its expiry.
	ErrTokenExpired = errors.New("token has expired")
	// ErrWrongTokenType is returned when, for example, a refresh token is presented where an access token is required.
	ErrWrongTokenType = errors.New("token type is not accepted here")
	// ErrTokenRevoked is returned when a token was explicitly revoked.
	ErrTokenRevoked = errors.New("token has been revoked")
)
