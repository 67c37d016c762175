package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/eugenenazirov/taskmanager/internal/storage"
)

const (
	// DefaultAccessTokenTTL is the lifetime of access tokens unless overridden.
	DefaultAccessTokenTTL = 15 * time.Minute
	// DefaultRefreshTokenTTL is the lifetime of refresh tokens unless overridden.
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// TokenType distinguishes short-lived access tokens from refresh tokens.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// Claims is the payload carried by every token the manager signs.
type Claims struct {
	Type  TokenType `json:"type"`
	Fresh bool      `json:"fresh,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the subject the token was issued for.
func (c *Claims) Identity() string {
	return c.Subject
}

// TokenManager issues and verifies HS256 tokens signed with a shared secret.
type TokenManager struct {
	secret      []byte
	issuer      string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	leeway      time.Duration
	revocations storage.RevocationStore
	clock       func() time.Time
}

// TokenOption configures a TokenManager.
type TokenOption func(*TokenManager)

// WithIssuer sets the iss claim on issued tokens and requires it on verification.
func WithIssuer(issuer string) TokenOption {
	return func(m *TokenManager) {
		m.issuer = strings.TrimSpace(issuer)
	}
}

// WithLifetimes overrides the access and refresh token lifetimes.
func WithLifetimes(access, refresh time.Duration) TokenOption {
	return func(m *TokenManager) {
		m.accessTTL = access
		m.refreshTTL = refresh
	}
}

// WithLeeway tolerates clock skew when validating time based claims.
func WithLeeway(leeway time.Duration) TokenOption {
	return func(m *TokenManager) {
		m.leeway = leeway
	}
}

// WithRevocationStore enables token revocation.
func WithRevocationStore(store storage.RevocationStore) TokenOption {
	return func(m *TokenManager) {
		m.revocations = store
	}
}

// WithTokenClock overrides the time source, primarily for tests.
func WithTokenClock(clock func() time.Time) TokenOption {
	return func(m *TokenManager) {
		m.clock = clock
	}
}

// NewTokenManager creates a TokenManager. It fails when the secret is blank.
func NewTokenManager(secret string, opts ...TokenOption) (*TokenManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}

	m := &TokenManager{
		secret:     []byte(secret),
		accessTTL:  DefaultAccessTokenTTL,
		refreshTTL: DefaultRefreshTokenTTL,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.accessTTL <= 0 || m.refreshTTL <= 0 {
		return nil, ErrInvalidLifetime
	}

	return m, nil
}

// CreateAccessToken signs an access token for identity.
func (m *TokenManager) CreateAccessToken(identity string, fresh bool) (string, error) {
	return m.create(identity, AccessToken, fresh, m.accessTTL)
}

// CreateRefreshToken signs a refresh token for identity.
func (m *TokenManager) CreateRefreshToken(identity string) (string, error) {
	return m.create(identity, RefreshToken, false, m.refreshTTL)
}

func (m *TokenManager) create(identity string, typ TokenType, fresh bool, ttl time.Duration) (string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", ErrEmptyIdentity
	}

	now := m.clock()
	claims := &Claims{
		Type:  typ,
		Fresh: fresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			Issuer:    m.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

// Verify parses tokenString, checks signature, time claims, issuer and type, and
// rejects revoked tokens.
func (m *TokenManager) Verify(tokenString string, want TokenType) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.clock),
		jwt.WithLeeway(m.leeway),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := &Claims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or id", ErrInvalidToken)
	}
	if claims.Type != want {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrWrongTokenType, want, claims.Type)
	}

	if m.revocations != nil {
		revoked, err := m.revocations.IsRevoked(claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}

// Revoke blocks the token described by claims until Verify would reject it as
// expired, leeway included.
func (m *TokenManager) Revoke(claims *Claims) error {
	if m.revocations == nil {
		return errors.New("token revocation is not enabled")
	}
	if claims == nil || claims.ExpiresAt == nil {
		return fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}
	if err := m.revocations.Revoke(claims.ID, claims.ExpiresAt.Time.Add(m.leeway)); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// AccessTTL returns the configured access token lifetime.
func (m *TokenManager) AccessTTL() time.Duration {
	return m.accessTTL
}
