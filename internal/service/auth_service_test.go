package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coursedeep-api/internal/models"
	appErrors "github.com/noah-isme/coursedeep-api/pkg/errors"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims *models.JWTClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() *models.JWTClaims {
	now := time.Now()
	return &models.JWTClaims{
		UserID:   "u-1",
		Role:     models.RoleUser,
		Email:    "ada@example.com",
		FullName: "Ada",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "course-deep",
			Subject:   "u-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestValidateToken(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: testSecret, Issuer: "course-deep"})

	claims, err := svc.ValidateToken(signToken(t, testSecret, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, models.RoleUser, claims.Role)
}

func TestValidateTokenDefaultsRoleAndUserID(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: testSecret})
	c := validClaims()
	c.Role = ""
	c.UserID = ""

	claims, err := svc.ValidateToken(signToken(t, testSecret, c))
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, claims.Role)
	assert.Equal(t, "u-1", claims.UserID)
}

func TestValidateTokenRejects(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: testSecret, Issuer: "course-deep"})

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "someone-else"

	noEmail := validClaims()
	noEmail.Email = ""

	cases := map[string]string{
		"bad signature": signToken(t, "other-secret", validClaims()),
		"expired":       signToken(t, testSecret, expired),
		"wrong issuer":  signToken(t, testSecret, wrongIssuer),
		"no email":      signToken(t, testSecret, noEmail),
		"garbage":       "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
		})
	}
}
