package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "aidreg/pkg/domain"
	dErrors "aidreg/pkg/domain-errors"
)

const admin = id.Principal("ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM")

func newService() *JWTService {
	return NewJWTService("test-signing-key", "test-issuer", "test-audience")
}

func Test_GenerateCallerToken(t *testing.T) {
	svc := newService()
	token, err := svc.GenerateCallerToken(admin, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, admin.String(), claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func Test_GenerateCallerToken_RequiresCaller(t *testing.T) {
	_, err := newService().GenerateCallerToken("", time.Hour)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func Test_ValidateToken_Invalid(t *testing.T) {
	_, err := newService().ValidateToken("invalid-token-string")
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func Test_ValidateToken_Expired(t *testing.T) {
	svc := newService()
	token, err := svc.GenerateCallerToken(admin, -time.Hour)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func Test_ValidateToken_WrongKeyOrAudience(t *testing.T) {
	token, err := NewJWTService("other-key", "test-issuer", "test-audience").GenerateCallerToken(admin, time.Hour)
	require.NoError(t, err)
	_, err = newService().ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	token, err = NewJWTService("test-signing-key", "test-issuer", "someone-else").GenerateCallerToken(admin, time.Hour)
	require.NoError(t, err)
	_, err = newService().ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   admin.String(),
		Issuer:    "test-issuer",
		Audience:  []string{"test-audience"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newService().ValidateToken(signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_Adapter(t *testing.T) {
	svc := newService()
	token, err := svc.GenerateCallerToken(admin, time.Hour)
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(svc).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, admin.String(), claims.Subject)
	assert.NotEmpty(t, claims.TokenID)
}
