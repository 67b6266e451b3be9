package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")

	token, err := GenerateToken(secret, "user-123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := ValidateToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken([]byte("secret-a"), "user-123")
	require.NoError(t, err)

	_, err = ValidateToken([]byte("secret-b"), token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	_, err := ValidateToken([]byte("test-secret"), "not.a.token")
	assert.Error(t, err)
}
