package signer

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSignerRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	s := FromKey(key)
	digest := crypto.Keccak256Hash([]byte("settlement digest"))

	sig, err := s.Sign(digest)
	require.NoError(t, err)
	require.Len(t, sig, crypto.SignatureLength)

	recovered, err := RecoverSigner(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), recovered)
}

func TestNewLocalSignerFromHex(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyHex := hex.EncodeToString(crypto.FromECDSA(key))

	s, err := NewLocalSigner(keyHex)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())

	// 0x prefix is tolerated
	prefixed, err := NewLocalSigner("0x" + keyHex)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), prefixed.Address())
}

func TestNewLocalSignerFailsClosed(t *testing.T) {
	_, err := NewLocalSigner("")
	assert.ErrorIs(t, err, ErrNoKey)

	_, err = NewLocalSigner("not-a-key")
	assert.Error(t, err)

	var empty *LocalSigner
	_, err = empty.Sign(crypto.Keccak256Hash([]byte("x")))
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestRecoverSignerNormalizesV(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s := FromKey(key)
	digest := crypto.Keccak256Hash([]byte("v-normalization"))

	sig, err := s.Sign(digest)
	require.NoError(t, err)

	// On-chain convention encodes the recovery id as 27/28.
	onchain := make([]byte, len(sig))
	copy(onchain, sig)
	onchain[64] += 27

	recovered, err := RecoverSigner(digest, onchain)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), recovered)
}

func TestRecoverSignerRejectsMalformed(t *testing.T) {
	digest := crypto.Keccak256Hash([]byte("x"))
	_, err := RecoverSigner(digest, []byte{0x01, 0x02})
	assert.Error(t, err)
}
