// internal/auth/auth_test.go
package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	s, err := NewSigner(time.Hour)
	require.NoError(t, err)
	id := uuid.New()

	token, err := s.CreateJWT(id, "alice")
	require.NoError(t, err)

	got, err := s.AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, id, got.UserID)
	assert.Equal(t, "alice", got.Username)
}

func TestJWTFromOtherSignerRejected(t *testing.T) {
	a, _ := NewSigner(0)
	b, _ := NewSigner(0)
	token, err := a.CreateJWT(uuid.New(), "x")
	require.NoError(t, err)

	_, err = b.AuthenticateJWT(token)
	assert.Error(t, err)
}

func TestExpiredJWTRejected(t *testing.T) {
	s, _ := NewSigner(-time.Minute)
	token, err := s.CreateJWT(uuid.New(), "x")
	require.NoError(t, err)
	_, err = s.AuthenticateJWT(token)
	assert.Error(t, err)
}

func TestPasscodeHashAndVerify(t *testing.T) {
	hash, err := HashPasscode("open sesame")
	require.NoError(t, err)

	assert.True(t, VerifyPasscode("open sesame", hash))
	assert.False(t, VerifyPasscode("open says me", hash))
	assert.False(t, VerifyPasscode("open sesame", "not-a-hash"))

	p, _, _, err := DecodeHash(hash)
	require.NoError(t, err)
	assert.Equal(t, PasscodeParams.Iterations, p.Iterations)
}

func TestEmptyPasscodeRejected(t *testing.T) {
	_, err := HashPasscode("   ")
	assert.ErrorIs(t, err, ErrEmptyPasscode)
}
