package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("secret-pw")
	require.NoError(t, err)
	assert.True(t, CheckPassword("secret-pw", h))
	assert.False(t, CheckPassword("other", h))

	_, err = HashPassword("123")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
