package crypto

import (
	"crypto/ed25519"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeed() []byte {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	return seed
}

func TestNewSignerFromSeed(t *testing.T) {
	seed := testSeed()
	s, err := NewSigner(base58.Encode(seed))
	require.NoError(t, err)

	wantPub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	assert.Equal(t, base58.Encode(wantPub), s.PublicKey())
}

func TestNewSignerFromSecretKey(t *testing.T) {
	pk := ed25519.NewKeyFromSeed(testSeed())

	fromSeed, err := NewSigner(base58.Encode(testSeed()))
	require.NoError(t, err)
	fromSecret, err := NewSigner(base58.Encode(pk))
	require.NoError(t, err)

	assert.Equal(t, fromSeed.PublicKey(), fromSecret.PublicKey(),
		"seed and full secret-key forms resolve to the same address")
}

func TestNewSignerRejectsBadKeys(t *testing.T) {
	_, err := NewSigner("not-base58-0OIl")
	assert.Error(t, err)

	_, err = NewSigner(base58.Encode([]byte{1, 2, 3}))
	assert.Error(t, err)
}

func TestSignerSignVerifies(t *testing.T) {
	s, err := NewSigner(base58.Encode(testSeed()))
	require.NoError(t, err)

	message := []byte("transfer 1 SOL")
	sig, err := s.Sign(message)
	require.NoError(t, err)
	require.Len(t, sig, ed25519.SignatureSize)

	pub, err := base58.Decode(s.PublicKey())
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub), message, sig))
	assert.False(t, ed25519.Verify(ed25519.PublicKey(pub), []byte("tampered"), sig))
}

func TestSignerStringRedactsKey(t *testing.T) {
	s, err := NewSigner(base58.Encode(testSeed()))
	require.NoError(t, err)

	out := s.String()
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, s.PublicKey(), "full key must not leak into logs")
}
