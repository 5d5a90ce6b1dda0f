package signer

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchy-labs/watchy/internal/config"
)

const testMnemonic = "test test test test test test test test test test test junk"

func TestDeriveFromMnemonicKnownVector(t *testing.T) {
	key, err := DeriveFromMnemonic(testMnemonic, 0)
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", addr.Hex())
}

func TestDeriveFromMnemonicDifferentIndicesDiffer(t *testing.T) {
	k0, err := DeriveFromMnemonic(testMnemonic, 0)
	require.NoError(t, err)
	k1, err := DeriveFromMnemonic(testMnemonic, 1)
	require.NoError(t, err)
	assert.NotEqual(t, crypto.PubkeyToAddress(k0.PublicKey), crypto.PubkeyToAddress(k1.PublicKey))
}

func TestFromConfigNullWhenUnconfigured(t *testing.T) {
	s, err := FromConfig(config.SignerConfig{})
	require.NoError(t, err)
	_, ok := s.Address()
	assert.False(t, ok)
	_, err = s.SignBytes([]byte("hello"))
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestFromConfigPrivateKeyMode(t *testing.T) {
	s, err := FromConfig(config.SignerConfig{
		PrivateKey: "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
	})
	require.NoError(t, err)
	addr, ok := s.Address()
	require.True(t, ok)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", addr.Hex())
}

func TestFromConfigRejectsUnknownKeyMode(t *testing.T) {
	_, err := FromConfig(config.SignerConfig{
		PrivateKey: "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
		Mnemonic:   testMnemonic,
		KeyMode:    "bogus",
	})
	assert.Error(t, err)
}

func TestSignBytesProducesRecoverableSignature(t *testing.T) {
	s, err := FromConfig(config.SignerConfig{Mnemonic: testMnemonic})
	require.NoError(t, err)
	addr, _ := s.Address()

	sigHex, err := s.SignBytes([]byte("report digest"))
	require.NoError(t, err)
	assert.True(t, len(sigHex) > 2)
	assert.Equal(t, "0x", sigHex[:2])

	sig, err := hexutil.Decode(sigHex)
	require.NoError(t, err)
	pub, err := crypto.SigToPub(accounts.TextHash([]byte("report digest")), sig)
	require.NoError(t, err)
	assert.Equal(t, addr, crypto.PubkeyToAddress(*pub))
}
