package chains

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBaseChain(t *testing.T) {
	c, ok := Get(8453)
	require.True(t, ok)
	assert.Equal(t, "base", c.Name)
	assert.True(t, c.HasRegistry())
	assert.Equal(t, "0x8004A169FB4a3325136EB29fA0ceB6D2e539a432", c.RegistryAddress)
}

func TestGetByName(t *testing.T) {
	c, ok := GetByName("ethereum")
	require.True(t, ok)
	assert.EqualValues(t, 1, c.ChainID)
}

func TestWithRegistryExcludesSolana(t *testing.T) {
	names := map[string]bool{}
	for _, c := range WithRegistry() {
		names[c.Name] = true
	}
	assert.True(t, names["base"])
	assert.True(t, names["sepolia"])
	assert.False(t, names["solana"])
}

func TestValidateRejectsSolana(t *testing.T) {
	err := Validate(101)
	assert.Error(t, err)
}

func TestAllRPCsEnvOverride(t *testing.T) {
	t.Setenv("RPC_URL_BASE_SEPOLIA", "https://custom.example/rpc")
	rpcs := AllRPCs(84532)
	require.NotEmpty(t, rpcs)
	assert.Equal(t, "https://custom.example/rpc", rpcs[0])
	assert.Contains(t, rpcs, "https://sepolia.base.org")
}

func TestAllRPCsUnsupportedChain(t *testing.T) {
	assert.Nil(t, AllRPCs(999999))
}
