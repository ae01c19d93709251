package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueParse(t *testing.T) {
	j := NewJWTer("s3cret", "storefront", time.Hour)
	tok, err := j.Issue("u1", "a@b.co", "admin")
	require.NoError(t, err)

	c, err := j.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", c.UID)
	assert.Equal(t, "admin", c.Role)
	assert.Equal(t, "a@b.co", c.Email)
}

func TestParseRejects(t *testing.T) {
	j := NewJWTer("s3cret", "storefront", time.Minute)
	tok, err := j.Issue("u1", "", "customer")
	require.NoError(t, err)

	other := NewJWTer("other", "storefront", time.Minute)
	_, err = other.Parse(tok)
	assert.Error(t, err)

	wrongIssuer := NewJWTer("s3cret", "elsewhere", time.Minute)
	_, err = wrongIssuer.Parse(tok)
	assert.Error(t, err)

	later := NewJWTer("s3cret", "storefront", time.Minute)
	later.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	_, err = later.Parse(tok)
	assert.Error(t, err)

	_, err = NewJWTer("", "x", time.Minute).Issue("u", "", "customer")
	assert.Error(t, err)
}
