package onchain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchy-labs/watchy/internal/chains"
)

func TestNewRegistryClientRejectsChainWithoutRegistry(t *testing.T) {
	cfg, ok := chains.Get(101) // solana, no registry
	require.True(t, ok)
	_, err := NewRegistryClient(cfg)
	assert.Error(t, err)
}

func TestNewRegistryClientParsesABI(t *testing.T) {
	cfg, ok := chains.Get(8453)
	require.True(t, ok)
	client, err := NewRegistryClient(cfg)
	require.NoError(t, err)
	_, ok = client.abi.Methods["ownerOf"]
	assert.True(t, ok)
}

func TestIsNonexistentTokenError(t *testing.T) {
	assert.True(t, isNonexistentTokenError(errors.New("execution reverted: ERC721NonexistentToken")))
	assert.True(t, isNonexistentTokenError(errors.New("nonexistent token")))
	assert.False(t, isNonexistentTokenError(errors.New("connection refused")))
}
