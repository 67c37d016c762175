package security

import (
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenenazirov/taskmanager/internal/storage"
)

const testSecret = "test-signing-secret"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, opts ...TokenOption) (*TokenManager, *testClock) {
	t.Helper()

	clock := &testClock{now: time.Now().UTC().Truncate(time.Second)}
	store := storage.NewMemoryRevocationStore(storage.WithClock(clock.Now))
	all := append([]TokenOption{
		WithTokenClock(clock.Now),
		WithRevocationStore(store),
	}, opts...)

	m, err := NewTokenManager(testSecret, all...)
	require.NoError(t, err)
	return m, clock
}

func TestNewTokenManagerRequiresSecret(t *testing.T) {
	t.Parallel()

	for _, secret := range []string{"", "   "} {
		_, err := NewTokenManager(secret)
		assert.ErrorIs(t, err, ErrMissingSecret)
	}
}

func TestNewTokenManagerRejectsNonPositiveLifetimes(t *testing.T) {
	t.Parallel()

	_, err := NewTokenManager(testSecret, WithLifetimes(0, time.Hour))
	assert.ErrorIs(t, err, ErrInvalidLifetime)

	_, err = NewTokenManager(testSecret, WithLifetimes(time.Minute, -time.Hour))
	assert.ErrorIs(t, err, ErrInvalidLifetime)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(t, WithIssuer("taskmanager"))

	token, err := m.CreateAccessToken("user-42", true)
	require.NoError(t, err)

	claims, err := m.Verify(token, AccessToken)
	require.NoError(t, err)

	assert.Equal(t, "user-42", claims.Identity())
	assert.Equal(t, AccessToken, claims.Type)
	assert.True(t, claims.Fresh)
	assert.Equal(t, "taskmanager", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.True(t, claims.ExpiresAt.Time.Equal(clock.Now().Add(DefaultAccessTokenTTL)))
}

func TestTokensHaveUniqueIDs(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)

	first, err := m.CreateAccessToken("user", false)
	require.NoError(t, err)
	second, err := m.CreateAccessToken("user", false)
	require.NoError(t, err)

	c1, err := m.Verify(first, AccessToken)
	require.NoError(t, err)
	c2, err := m.Verify(second, AccessToken)
	require.NoError(t, err)

	assert.NotEqual(t, c1.ID, c2.ID)
}

func TestCreateRejectsEmptyIdentity(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)

	_, err := m.CreateAccessToken(" ", false)
	assert.ErrorIs(t, err, ErrEmptyIdentity)
	_, err = m.CreateRefreshToken("")
	assert.ErrorIs(t, err, ErrEmptyIdentity)
}

func TestVerifyRejectsWrongType(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)

	refresh, err := m.CreateRefreshToken("user")
	require.NoError(t, err)

	_, err = m.Verify(refresh, AccessToken)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	claims, err := m.Verify(refresh, RefreshToken)
	require.NoError(t, err)
	assert.False(t, claims.Fresh)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(t, WithLifetimes(time.Minute, time.Hour))

	token, err := m.CreateAccessToken("user", false)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	_, err = m.Verify(token, AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyHonoursLeeway(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(t, WithLifetimes(time.Minute, time.Hour), WithLeeway(30*time.Second))

	token, err := m.CreateAccessToken("user", false)
	require.NoError(t, err)

	clock.Advance(time.Minute + 10*time.Second)

	_, err = m.Verify(token, AccessToken)
	assert.NoError(t, err)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	other, err := NewTokenManager("another-secret")
	require.NoError(t, err)

	token, err := other.CreateAccessToken("user", false)
	require.NoError(t, err)

	_, err = m.Verify(token, AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(t)

	claims := &Claims{
		Type: AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user",
			ID:        "id",
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = m.Verify(token, AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRequiresExpiry(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)

	claims := &Claims{
		Type:             AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user", ID: "id"},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = m.Verify(token, AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyChecksIssuer(t *testing.T) {
	t.Parallel()

	issuing, err := NewTokenManager(testSecret, WithIssuer("someone-else"))
	require.NoError(t, err)
	m, _ := newTestManager(t, WithIssuer("taskmanager"))

	token, err := issuing.CreateAccessToken("user", false)
	require.NoError(t, err)

	_, err = m.Verify(token, AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)

	_, err := m.Verify("invalid.token.here", AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevokeBlocksToken(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)

	token, err := m.CreateAccessToken("user", false)
	require.NoError(t, err)
	claims, err := m.Verify(token, AccessToken)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(claims))

	_, err = m.Verify(token, AccessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRevokedTokenStaysBlockedThroughLeeway(t *testing.T) {
	t.Parallel()

	m, clock := newTestManager(t, WithLifetimes(time.Minute, time.Hour), WithLeeway(30*time.Second))

	token, err := m.CreateAccessToken("user", false)
	require.NoError(t, err)
	claims, err := m.Verify(token, AccessToken)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(claims))

	clock.Advance(70 * time.Second)

	_, err = m.Verify(token, AccessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	clock.Advance(30 * time.Second)

	_, err = m.Verify(token, AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRevokeWithoutStore(t *testing.T) {
	t.Parallel()

	m, err := NewTokenManager(testSecret)
	require.NoError(t, err)

	token, err := m.CreateAccessToken("user", false)
	require.NoError(t, err)
	claims, err := m.Verify(token, AccessToken)
	require.NoError(t, err)

	assert.Error(t, m.Revoke(claims))
}
