package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserToken_RoundTrip(t *testing.T) {
	token, err := GenerateUserToken("u1", "s3cret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseUserToken(token, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID())
}

func TestUserToken_Rejects(t *testing.T) {
	token, err := GenerateUserToken("u1", "s3cret", time.Hour)
	require.NoError(t, err)
	_, err = ParseUserToken(token, "other")
	assert.Error(t, err)

	expired, err := GenerateUserToken("u1", "s3cret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseUserToken(expired, "s3cret")
	assert.Error(t, err)

	_, err = GenerateUserToken("u1", "", time.Hour)
	assert.Error(t, err)
}
