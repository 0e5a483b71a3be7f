package auth

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T, ttl time.Duration) *Issuer {
	t.Helper()
	i, err := NewIssuer([]byte("super-secret-super-secret-super-secret"), ttl)
	require.NoError(t, err)
	return i
}

func TestNewIssuer_Validation(t *testing.T) {
	_, err := NewIssuer(nil, time.Minute)
	assert.Error(t, err)
	_, err = NewIssuer([]byte("s"), 0)
	assert.Error(t, err)
}

func TestIssue_Success(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t, 15*time.Minute)

	pair, err := i.Issue("user-123", "ADMIN")
	require.NoError(t, err)
	assert.EqualValues(t, 900, pair.ExpiresIn)

	raw, err := hex.DecodeString(pair.RefreshToken)
	require.NoError(t, err)
	assert.Len(t, raw, common.RefreshTokenBytes)

	claims, err := i.Verify(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "ADMIN", claims.Role)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, 2*time.Second)
}

func TestIssue_FreshSecretsEachCall(t *testing.T) {
	t.Parallel()
	i := newTestIssuer(t, time.Minute)

	a, err := i.Issue("u1", "EDITOR")
	require.NoError(t, err)
	b, err := i.Issue("u1", "EDITOR")
	require.NoError(t, err)

	assert.NotEqual(t, a.RefreshToken, b.RefreshToken)
	assert.NotEqual(t, a.AccessToken, b.AccessToken)
}

func TestIssue_MissingInput(t *testing.T) {
	i := newTestIssuer(t, time.Minute)

	_, err := i.Issue("", "ADMIN")
	assert.ErrorIs(t, err, common.ErrorValidation)
	_, err = i.Issue("u1", "")
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestVerify_Expired(t *testing.T) {
	i := newTestIssuer(t, time.Minute)
	i.now = func() time.Time { return time.Now().Add(-time.Hour) }

	tok, err := i.GenerateAccessToken("u1", "EDITOR")
	require.NoError(t, err)

	i.now = time.Now
	_, err = i.Verify(tok)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestVerify_WrongSecret(t *testing.T) {
	i := newTestIssuer(t, time.Minute)
	other, err := NewIssuer([]byte("another-secret"), time.Minute)
	require.NoError(t, err)

	tok, err := other.GenerateAccessToken("u1", "EDITOR")
	require.NoError(t, err)

	_, err = i.Verify(tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	i := newTestIssuer(t, time.Minute)

	tok := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = i.Verify(s)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_Garbage(t *testing.T) {
	i := newTestIssuer(t, time.Minute)
	_, err := i.Verify("not-a-valid-jwt")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestExpiresAt(t *testing.T) {
	i := newTestIssuer(t, 15*time.Minute)

	tok, err := i.GenerateAccessToken("u1", "EDITOR")
	require.NoError(t, err)

	claims, err := i.Verify(tok)
	require.NoError(t, err)

	exp, err := ExpiresAt(tok)
	require.NoError(t, err)
	assert.True(t, exp.Equal(claims.ExpiresAt.Time))

	_, err = ExpiresAt("garbage")
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}})
	s, err := noExp.SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = ExpiresAt(s)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}
