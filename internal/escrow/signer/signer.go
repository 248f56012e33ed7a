package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNoKey is returned when a signer is asked to sign without usable key
// material. Signing fails closed: no garbage signatures.
var ErrNoKey = errors.New("signer has no key material")

// Signer is the settlement authorization capability. It is injected into the
// orchestrator so production can back it with an HSM while tests use an
// in-memory key.
type Signer interface {
	// Sign produces a 65-byte [R || S || V] signature over the given digest,
	// recoverable to exactly one well-known address.
	Sign(digest common.Hash) ([]byte, error)
	// Address returns the public identity signatures recover to.
	Address() common.Address
}

// LocalSigner holds a secp256k1 private key in memory. One active key per
// deployment; rotation requires a new contract deployment, so there is no
// rotation method here.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocalSigner builds a signer from a hex-encoded private key, as loaded
// from configuration.
func NewLocalSigner(privKeyHex string) (*LocalSigner, error) {
	privKeyHex = strings.TrimPrefix(strings.TrimSpace(privKeyHex), "0x")
	if privKeyHex == "" {
		return nil, ErrNoKey
	}
	key, err := crypto.HexToECDSA(privKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid signer private key: %w", err)
	}
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// FromKey wraps an already-parsed private key. Used by tests and tooling.
func FromKey(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

func (s *LocalSigner) Sign(digest common.Hash) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, ErrNoKey
	}
	sig, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	return sig, nil
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

// RecoverSigner recovers the address that produced sig over digest. Accepts
// both the raw recovery id (0/1) and the on-chain convention (27/28).
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(sig))
	}
	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pubKey, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}
