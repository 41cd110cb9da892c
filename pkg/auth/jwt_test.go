package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	keys := NewKeys("test-secret")

	key, err := keys.Issue("cli", 0)
	require.NoError(t, err)

	claims, err := keys.Validate(key)
	require.NoError(t, err)
	assert.Equal(t, "cli", claims.Subject)
	assert.Equal(t, ScopeGames, claims.Scope)
	assert.NotEmpty(t, claims.ID)
	assert.Nil(t, claims.ExpiresAt)
}

func TestValidateRejects(t *testing.T) {
	keys := NewKeys("test-secret")
	other := NewKeys("other-secret")

	foreign, err := other.Issue("cli", 0)
	require.NoError(t, err)
	_, err = keys.Validate(foreign)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = keys.Validate("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidKey)

	start := time.Now()
	keys.now = func() time.Time { return start }
	short, err := keys.Issue("cli", time.Minute)
	require.NoError(t, err)
	keys.now = func() time.Time { return start.Add(time.Hour) }
	_, err = keys.Validate(short)
	assert.ErrorIs(t, err, ErrInvalidKey)

	wrongScope := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Scope:            "admin",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer},
	})
	signed, err := wrongScope.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = keys.Validate(signed)
	assert.ErrorIs(t, err, ErrInvalidKey)
}
