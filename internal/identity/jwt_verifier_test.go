package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lumahq/lumina/internal/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func newVerifier(t *testing.T) Verifier {
	t.Helper()
	v, err := NewJWTVerifier(config.Config{AuthJWTSecret: testSecret}, zap.NewNop())
	require.NoError(t, err)
	return v
}

func signToken(t *testing.T, secret string, cl claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims(sub string) claims {
	return claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email:      "alice@example.com",
		Privileged: false,
	}
}

func TestVerifyValidToken(t *testing.T) {
	v := newVerifier(t)

	ident, err := v.Verify(context.Background(), signToken(t, testSecret, validClaims("u1")))
	require.NoError(t, err)
	require.Equal(t, "u1", ident.UserID)
	require.Equal(t, "alice@example.com", ident.Email)
	require.False(t, ident.Privileged)
}

func TestVerifyPrivilegedClaim(t *testing.T) {
	v := newVerifier(t)

	cl := validClaims("staff")
	cl.Privileged = true

	ident, err := v.Verify(context.Background(), signToken(t, testSecret, cl))
	require.NoError(t, err)
	require.True(t, ident.Privileged)
}

func TestVerifyWrongSecret(t *testing.T) {
	v := newVerifier(t)

	_, err := v.Verify(context.Background(), signToken(t, "other-secret", validClaims("u1")))
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyExpiredToken(t *testing.T) {
	v := newVerifier(t)

	cl := validClaims("u1")
	cl.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	_, err := v.Verify(context.Background(), signToken(t, testSecret, cl))
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyMissingSubject(t *testing.T) {
	v := newVerifier(t)

	_, err := v.Verify(context.Background(), signToken(t, testSecret, validClaims("")))
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyEmptyToken(t *testing.T) {
	v := newVerifier(t)

	_, err := v.Verify(context.Background(), "")
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestVerifierRequiresSecret(t *testing.T) {
	_, err := NewJWTVerifier(config.Config{}, zap.NewNop())
	require.Error(t, err)
}

func TestFromBearer(t *testing.T) {
	token, err := FromBearer("Bearer abc123")
	require.NoError(t, err)
	require.Equal(t, "abc123", token)

	token, err = FromBearer("bearer abc123")
	require.NoError(t, err)
	require.Equal(t, "abc123", token)

	_, err = FromBearer("")
	require.ErrorIs(t, err, ErrMissingToken)

	_, err = FromBearer("Basic abc123")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = FromBearer("Bearer ")
	require.ErrorIs(t, err, ErrInvalidToken)
}
