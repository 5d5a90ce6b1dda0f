package config

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), logger)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.EqualValues(t, 8453, cfg.Chains.DefaultChainID)
}

func TestLoadRejectsBothKeyModes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Signer.PrivateKey = "0xabc"
	cfg.Signer.Mnemonic = "test test test"
	assert.Error(t, validate(cfg))
}

func TestEnvOverridesApplied(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DEFAULT_CHAIN_ID", "1")
	cfg := DefaultConfig()
	applyEnvironmentOverrides(cfg)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.EqualValues(t, 1, cfg.Chains.DefaultChainID)
}
