// Package chains holds the static, immutable-after-init table of chains
// Watchy knows how to audit agents on.
package chains

import (
	"fmt"
	"os"
	"strings"
)

// Type distinguishes the execution environment a chain entry describes.
// Only Evm chains carry a working on-chain verifier; Solana entries are kept
// in the table for parity with the audited registry but are rejected at
// request time with an invalid_request error.
type Type string

const (
	Evm    Type = "evm"
	Solana Type = "solana"
)

// Config describes one supported chain.
type Config struct {
	ChainID           uint64
	Name              string
	Type              Type
	RegistryAddress   string // empty if none deployed
	ReputationAddress string
	RPCs              []string
	BlockExplorer     string
	Testnet           bool
}

// HasRegistry reports whether an identity registry is deployed on this chain.
func (c Config) HasRegistry() bool { return c.RegistryAddress != "" }

var registry = map[uint64]Config{
	8453: {
		ChainID: 8453, Name: "base", Type: Evm,
		RegistryAddress:   "0x8004A169FB4a3325136EB29fA0ceB6D2e539a432",
		ReputationAddress: "0x8004BAa17C55a88189AE136b182e5fdA19dE9b63",
		RPCs: []string{
			"https://mainnet.base.org",
			"https://base.llamarpc.com",
			"https://base.drpc.org",
			"https://base-mainnet.public.blastapi.io",
		},
		BlockExplorer: "https://basescan.org",
	},
	1: {
		ChainID: 1, Name: "ethereum", Type: Evm,
		RegistryAddress:   "0x8004A169FB4a3325136EB29fA0ceB6D2e539a432",
		ReputationAddress: "0x8004BAa17C55a88189AE136b182e5fdA19dE9b63",
		RPCs: []string{
			"https://eth.llamarpc.com",
			"https://ethereum.publicnode.com",
			"https://rpc.ankr.com/eth",
			"https://eth.drpc.org",
		},
		BlockExplorer: "https://etherscan.io",
	},
	84532: {
		ChainID: 84532, Name: "base-sepolia", Type: Evm, Testnet: true,
		RegistryAddress:   "0x8004A818BFB912233c491871b3d84c89A494BD9e",
		ReputationAddress: "0x8004B663056A597Dffe9eCcC1965A193B7388713",
		RPCs: []string{
			"https://sepolia.base.org",
			"https://base-sepolia.drpc.org",
			"https://base-sepolia.publicnode.com",
		},
		BlockExplorer: "https://sepolia.basescan.org",
	},
	11155111: {
		ChainID: 11155111, Name: "sepolia", Type: Evm, Testnet: true,
		RegistryAddress:   "0x8004A818BFB912233c491871b3d84c89A494BD9e",
		ReputationAddress: "0x8004B663056A597Dffe9eCcC1965A193B7388713",
		RPCs: []string{
			"https://sepolia.drpc.org",
			"https://ethereum-sepolia.publicnode.com",
			"https://rpc.ankr.com/eth_sepolia",
		},
		BlockExplorer: "https://sepolia.etherscan.io",
	},
	101: {
		ChainID: 101, Name: "solana", Type: Solana,
		RPCs: []string{
			"https://api.mainnet-beta.solana.com",
			"https://solana-api.projectserum.com",
		},
		BlockExplorer: "https://solscan.io",
	},
	103: {
		ChainID: 103, Name: "solana-devnet", Type: Solana, Testnet: true,
		RPCs:          []string{"https://api.devnet.solana.com"},
		BlockExplorer: "https://solscan.io/?cluster=devnet",
	},
}

// Get returns the config for chainID, or false if unsupported.
func Get(chainID uint64) (Config, bool) {
	c, ok := registry[chainID]
	return c, ok
}

// GetByName looks up a chain by its short name ("base", "sepolia", ...).
func GetByName(name string) (Config, bool) {
	for _, c := range registry {
		if c.Name == name {
			return c, true
		}
	}
	return Config{}, false
}

// SupportedChainIDs lists every configured chain ID.
func SupportedChainIDs() []uint64 {
	ids := make([]uint64, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	return ids
}

// WithRegistry returns every chain that has a deployed identity registry.
func WithRegistry() []Config {
	out := make([]Config, 0, len(registry))
	for _, c := range registry {
		if c.HasRegistry() {
			out = append(out, c)
		}
	}
	return out
}

// AllRPCs returns the RPC URLs to try, in order, for chainID: an
// RPC_URL_<CHAIN_NAME> environment override first (if set), followed by
// every statically configured RPC for that chain.
func AllRPCs(chainID uint64) []string {
	c, ok := Get(chainID)
	if !ok {
		return nil
	}
	envKey := "RPC_URL_" + strings.ToUpper(strings.ReplaceAll(c.Name, "-", "_"))
	rpcs := make([]string, 0, len(c.RPCs)+1)
	if override := os.Getenv(envKey); override != "" {
		rpcs = append(rpcs, override)
	}
	rpcs = append(rpcs, c.RPCs...)
	return rpcs
}

// Validate returns an error if chainID names an unsupported or non-EVM chain.
func Validate(chainID uint64) error {
	c, ok := Get(chainID)
	if !ok {
		return fmt.Errorf("unsupported chain id %d", chainID)
	}
	if c.Type != Evm {
		return fmt.Errorf("chain %d (%s) has no EVM-compatible on-chain verifier", chainID, c.Name)
	}
	if !c.HasRegistry() {
		return fmt.Errorf("chain %d (%s) has no deployed identity registry", chainID, c.Name)
	}
	return nil
}
