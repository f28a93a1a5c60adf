package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "finpay-ledger/internal/errors"
)

func TestIssueAndVerify(t *testing.T) {
	a, err := NewAuthenticator("s3cret", "finpay")
	require.NoError(t, err)
	accountID := uuid.New()

	token, err := a.IssueToken(accountID, "", time.Hour)
	require.NoError(t, err)

	id, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, accountID, id.AccountID)
	assert.Equal(t, RoleUser, id.Role)
	assert.False(t, id.IsAdmin())
	assert.True(t, id.CanAccess(accountID))
	assert.False(t, id.CanAccess(uuid.New()))

	adminToken, err := a.IssueToken(accountID, RoleAdmin, time.Hour)
	require.NoError(t, err)
	admin, err := a.Verify(adminToken)
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())
	assert.True(t, admin.CanAccess(uuid.New()))
}

func TestVerifyRejects(t *testing.T) {
	a, err := NewAuthenticator("s3cret", "finpay")
	require.NoError(t, err)
	other, err := NewAuthenticator("different", "finpay")
	require.NoError(t, err)
	foreignIssuer, err := NewAuthenticator("s3cret", "someone-else")
	require.NoError(t, err)

	expired, err := a.IssueToken(uuid.New(), "", -time.Minute)
	require.NoError(t, err)
	wrongKey, err := other.IssueToken(uuid.New(), "", time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := foreignIssuer.IssueToken(uuid.New(), "", time.Hour)
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    "finpay",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString(), Issuer: "finpay"},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not.a.token",
		"expired":      expired,
		"wrong key":    wrongKey,
		"wrong issuer": wrongIssuer,
		"bad subject":  badSubject,
		"no expiry":    noExpiry,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.Verify(token)
			assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
		})
	}
}

func TestNewAuthenticatorRequiresSecret(t *testing.T) {
	_, err := NewAuthenticator("", "finpay")
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc.def.ghi")
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", token)

	token, ok = BearerToken("bearer   xyz ")
	assert.True(t, ok)
	assert.Equal(t, "xyz", token)

	for _, header := range []string{"", "Bearer", "Bearer ", "Basic abc"} {
		_, ok := BearerToken(header)
		assert.False(t, ok, header)
	}
}

func TestIdentityContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	want := Identity{AccountID: uuid.New(), Role: RoleAdmin}
	got, ok := FromContext(WithIdentity(context.Background(), want))
	assert.True(t, ok)
	assert.Equal(t, want, got)
}
