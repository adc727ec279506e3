package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedWithExpiry(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		claimSubject: "u1",
		claimExpires: exp.Unix(),
	})
	signed, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)
	return signed
}

func TestNewStoreRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewStore(nil, StoreOptions{Token: "  "})
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestStoreStaticOpaqueToken(t *testing.T) {
	t.Parallel()

	s, err := NewStore(nil, StoreOptions{Token: "opaque-token"})
	require.NoError(t, err)
	tok, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", tok.AccessToken)
	assert.True(t, tok.Expiry.IsZero())

	raw, err := s.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", raw)
}

func TestStoreJWTCarriesExpiry(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	s, err := NewStore(nil, StoreOptions{Token: signedWithExpiry(t, exp)})
	require.NoError(t, err)
	tok, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, exp.Unix(), tok.Expiry.Unix())
}

func TestStoreExpiredToken(t *testing.T) {
	t.Parallel()

	s, err := NewStore(nil, StoreOptions{Token: signedWithExpiry(t, time.Now().Add(-time.Minute))})
	require.NoError(t, err)
	_, err = s.Token()
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestStoreReadsTokenFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("file-token\n"), 0o600))
	s, err := NewStore(nil, StoreOptions{TokenFile: path})
	require.NoError(t, err)
	raw, err := s.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "file-token", raw)
}

func TestStoreMissingTokenFile(t *testing.T) {
	t.Parallel()

	s, err := NewStore(nil, StoreOptions{TokenFile: filepath.Join(t.TempDir(), "absent")})
	require.NoError(t, err)
	_, err = s.Token()
	require.Error(t, err)
}

func TestAccessTokenHonoursCanceledContext(t *testing.T) {
	t.Parallel()

	s, err := NewStore(nil, StoreOptions{Token: "x"})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.AccessToken(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestExpiryOf(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(30 * time.Minute)
	got, ok, err := ExpiryOf(signedWithExpiry(t, exp))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, exp.Unix(), got.Unix())

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{claimSubject: "u1"}).SignedString([]byte("s"))
	require.NoError(t, err)
	_, ok, err = ExpiryOf(noExp)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = ExpiryOf("not-a-jwt")
	assert.Error(t, err)
}
