package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenServiceRoundTrip(t *testing.T) {
	svc, err := NewTokenService(time.Hour, "traffic-api", "traffic-clients", "test-secret-key-for-unit-tests")
	require.NoError(t, err)

	token, err := svc.GenerateToken(42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.NotEmpty(t, claims.TokenID)
}

func TestTokenServiceRejectsExpiredToken(t *testing.T) {
	svc, err := NewTokenService(-time.Minute, "traffic-api", "traffic-clients", "test-secret-key-for-unit-tests")
	require.NoError(t, err)

	token, err := svc.GenerateToken(42)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenServiceRejectsForeignSignature(t *testing.T) {
	issuer, err := NewTokenService(time.Hour, "traffic-api", "traffic-clients", "key-one")
	require.NoError(t, err)
	verifier, err := NewTokenService(time.Hour, "traffic-api", "traffic-clients", "key-two")
	require.NoError(t, err)

	token, err := issuer.GenerateToken(42)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenServiceRequiresSecret(t *testing.T) {
	_, err := NewTokenService(time.Hour, "traffic-api", "traffic-clients", "")
	assert.Error(t, err)
}
