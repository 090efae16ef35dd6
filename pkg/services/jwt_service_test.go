package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/auth"
)

func TestJWTServiceRoundTrip(t *testing.T) {
	service := NewJWTService("test-secret", time.Hour)

	token, err := service.GenerateToken(auth.Account{ID: "acct-1", Username: "alice"})
	require.NoError(t, err)

	accountID, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", accountID)
}

func TestJWTServiceRejectsForeignIssuer(t *testing.T) {
	service := NewJWTService("test-secret", time.Hour)

	// Signed with the right secret but minted by someone else
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AccountID: "acct-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    "someone-else",
		},
	})
	tokenString, err := foreign.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = service.ValidateToken(tokenString)
	assert.Error(t, err)
}

func TestJWTServiceRejectsExpiredToken(t *testing.T) {
	service := NewJWTService("test-secret", time.Hour)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AccountID: "acct-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			Issuer:    tokenIssuer,
		},
	})
	tokenString, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = service.ValidateToken(tokenString)
	assert.Error(t, err)
}

func TestJWTServiceRejectsTokenWithoutExpiry(t *testing.T) {
	service := NewJWTService("test-secret", time.Hour)

	unbounded := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AccountID: "acct-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: tokenIssuer,
		},
	})
	tokenString, err := unbounded.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = service.ValidateToken(tokenString)
	assert.Error(t, err)
}

func TestJWTServiceExpiryFallback(t *testing.T) {
	service := NewJWTService("test-secret", 0)
	assert.Equal(t, 24*time.Hour, service.expiry)
}
