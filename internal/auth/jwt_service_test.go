package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
	require.EqualError(t, err, "jwt: secret must be provided")
}

func TestIssueAndValidateToken(t *testing.T) {
	current := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	svc, err := NewJWTService(JWTConfig{
		Secret:         "super-secret",
		Issuer:         "tradepost-auth",
		Audience:       "tradepost",
		AccessTokenTTL: time.Hour,
		Clock:          now,
	})
	require.NoError(t, err)

	token, err := svc.IssueToken(TokenInput{UserID: "user-123", Email: "seller@example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)

	require.Equal(t, "user-123", claims.UserID)
	require.Equal(t, "seller@example.com", claims.Email)
	require.Equal(t, "tradepost-auth", claims.Issuer)
	require.Equal(t, jwt.ClaimStrings{"tradepost"}, claims.Audience)
	require.True(t, claims.ExpiresAt.Time.Equal(current.Add(time.Hour)))
}

func TestValidateAccessTokenRejectsForeignTokens(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC) }

	issuer, err := NewJWTService(JWTConfig{Secret: "issuer-secret", Issuer: "a", Clock: now})
	require.NoError(t, err)
	token, err := issuer.IssueToken(TokenInput{UserID: "user"})
	require.NoError(t, err)

	wrongSecret, err := NewJWTService(JWTConfig{Secret: "other-secret", Issuer: "a", Clock: now})
	require.NoError(t, err)
	_, err = wrongSecret.ValidateAccessToken(token)
	require.Error(t, err)

	wrongIssuer, err := NewJWTService(JWTConfig{Secret: "issuer-secret", Issuer: "b", Clock: now})
	require.NoError(t, err)
	_, err = wrongIssuer.ValidateAccessToken(token)
	require.Error(t, err)

	wrongAudience, err := NewJWTService(JWTConfig{Secret: "issuer-secret", Issuer: "a", Audience: "other", Clock: now})
	require.NoError(t, err)
	_, err = wrongAudience.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestValidateAccessTokenExpired(t *testing.T) {
	current := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewJWTService(JWTConfig{
		Secret:         "secret",
		AccessTokenTTL: time.Minute,
		Clock:          func() time.Time { return current },
	})
	require.NoError(t, err)

	token, err := svc.IssueToken(TokenInput{UserID: "user"})
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = svc.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestValidateAccessTokenFallsBackToSubject(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "provider-user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	svc, err := NewJWTService(JWTConfig{Secret: "secret"})
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(signed)
	require.NoError(t, err)
	require.Equal(t, "provider-user", claims.UserID)
}

func TestValidateAccessTokenRejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	svc, err := NewJWTService(JWTConfig{Secret: "secret"})
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(signed)
	require.Error(t, err)
}
