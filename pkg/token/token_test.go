package token

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-signing-key-with-enough-entropy"

func TestNewIssuer(t *testing.T) {
	t.Run("requires a key", func(t *testing.T) {
		_, err := NewIssuer("", time.Hour)
		assert.ErrorIs(t, err, ErrMissingSigningKey)
	})

	t.Run("defaults ttl", func(t *testing.T) {
		issuer, err := NewIssuer(testKey, 0)
		require.NoError(t, err)
		assert.Equal(t, DefaultTTL, issuer.ttl)
	})
}

func TestIssueAndVerify(t *testing.T) {
	issuer, err := NewIssuer(testKey, time.Hour)
	require.NoError(t, err)

	userID := uuid.New()
	tok, err := issuer.Issue(userID)
	require.NoError(t, err)
	assert.Len(t, strings.Split(tok, "."), 3)

	got, err := issuer.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestVerifyRejections(t *testing.T) {
	issuer, err := NewIssuer(testKey, time.Hour)
	require.NoError(t, err)

	userID := uuid.New()
	tok, err := issuer.Issue(userID)
	require.NoError(t, err)

	t.Run("malformed token", func(t *testing.T) {
		_, err := issuer.Verify("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("tampered payload", func(t *testing.T) {
		parts := strings.Split(tok, ".")
		tampered := parts[0] + "." + parts[1] + "x." + parts[2]
		_, err := issuer.Verify(tampered)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := NewIssuer("a-completely-different-signing-key", time.Hour)
		require.NoError(t, err)
		_, err = other.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("expired token", func(t *testing.T) {
		expired, err := NewIssuer(testKey, time.Hour)
		require.NoError(t, err)
		expired.now = func() time.Time { return time.Now().UTC().Add(-2 * time.Hour) }

		tok, err := expired.Issue(userID)
		require.NoError(t, err)

		_, err = issuer.Verify(tok)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})
}
