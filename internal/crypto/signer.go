package crypto

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
)

// Signer signs transaction messages with the treasury's ed25519 key.
type Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  string // base58, cached
}

// NewSigner creates a Signer from a base58-encoded private key. Both the
// 64-byte secret-key format (seed || public key) and a bare 32-byte seed are
// accepted.
func NewSigner(privateKeyBase58 string) (*Signer, error) {
	keyBytes, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	var pk ed25519.PrivateKey
	switch len(keyBytes) {
	case ed25519.SeedSize:
		pk = ed25519.NewKeyFromSeed(keyBytes)
	case ed25519.PrivateKeySize:
		pk = ed25519.PrivateKey(keyBytes)
	default:
		return nil, fmt.Errorf("crypto/signer: expected %d- or %d-byte key, got %d bytes",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(keyBytes))
	}

	pub, ok := pk.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: unexpected public key type")
	}

	return &Signer{
		privateKey: pk,
		publicKey:  base58.Encode(pub),
	}, nil
}

// PublicKey returns the base58-encoded public key, which is also the
// treasury's on-chain address.
func (s *Signer) PublicKey() string {
	return s.publicKey
}

// Sign returns the 64-byte ed25519 signature over message.
func (s *Signer) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(s.privateKey, message), nil
}

// String returns a redacted representation suitable for logging.
func (s *Signer) String() string {
	pub := s.publicKey
	if len(pub) > 8 {
		pub = pub[:8] + "..."
	}
	return fmt.Sprintf("Signer{pubkey=%s}", pub)
}
