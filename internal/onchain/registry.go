// Package onchain reads and writes the EIP-8004 identity and reputation
// registries, retrying across a chain's configured RPC list with backoff
// before giving up, the way the reference audit engine's fetch_onchain_data
// walks get_all_rpcs.
package onchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/watchy-labs/watchy/internal/chains"
)

// identityRegistryABI describes the subset of the IIdentityRegistry surface
// Watchy calls: ownerOf/tokenURI (ERC-721-shaped) and the EIP-8004 wallet
// extension getAgentWallet, plus agentExists for existence checks.
const identityRegistryABI = `[
  {"inputs":[{"internalType":"uint256","name":"tokenId","type":"uint256"}],"name":"ownerOf","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"tokenId","type":"uint256"}],"name":"tokenURI","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"agentId","type":"uint256"}],"name":"agentURI","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"agentId","type":"uint256"}],"name":"getAgentWallet","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"agentId","type":"uint256"}],"name":"agentExists","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"}
]`

// AgentRecord is what the on-chain verifier phase produces.
type AgentRecord struct {
	Exists      bool
	Owner       common.Address
	MetadataURI string
	URIMismatch bool // tokenURI and agentURI both resolved but disagreed
	Wallet      *common.Address // nil if unset (zero address)
	BlockNumber uint64
	RPCUsed     string
}

// RegistryClient reads the identity registry for one chain, failing over
// across every RPC configured for that chain.
type RegistryClient struct {
	chainID  uint64
	registry common.Address
	abi      abi.ABI
}

// NewRegistryClient builds a client for chainCfg's deployed registry.
func NewRegistryClient(chainCfg chains.Config) (*RegistryClient, error) {
	if !chainCfg.HasRegistry() {
		return nil, fmt.Errorf("chain %d (%s) has no identity registry deployed", chainCfg.ChainID, chainCfg.Name)
	}
	parsed, err := abi.JSON(strings.NewReader(identityRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}
	return &RegistryClient{
		chainID:  chainCfg.ChainID,
		registry: common.HexToAddress(chainCfg.RegistryAddress),
		abi:      parsed,
	}, nil
}

// FetchAgent resolves agentID's on-chain record, trying each RPC URL for the
// chain in order with exponential backoff before advancing to the next.
func (c *RegistryClient) FetchAgent(ctx context.Context, agentID *big.Int, rpcs []string) (*AgentRecord, error) {
	var lastErr error
	for _, rpc := range rpcs {
		rec, err := c.tryFetch(ctx, agentID, rpc)
		if err == nil {
			return rec, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no RPC URLs configured for chain %d", c.chainID)
	}
	return nil, fmt.Errorf("all RPCs exhausted for chain %d: %w", c.chainID, lastErr)
}

func (c *RegistryClient) tryFetch(ctx context.Context, agentID *big.Int, rpc string) (*AgentRecord, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.Multiplier = 2
	bo.MaxInterval = 4 * time.Second
	boCtx := backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx)

	var rec *AgentRecord
	op := func() error {
		client, err := ethclient.DialContext(ctx, rpc)
		if err != nil {
			return err
		}
		defer client.Close()

		bound := bind.NewBoundContract(c.registry, c.abi, client, client, client)
		call := &bind.CallOpts{Context: ctx}

		exists, err := c.agentExists(call, bound, agentID)
		if err != nil {
			return err
		}
		if !exists {
			blockNum, _ := client.BlockNumber(ctx)
			rec = &AgentRecord{Exists: false, BlockNumber: blockNum, RPCUsed: rpc}
			return nil
		}

		owner, err := c.ownerOf(call, bound, agentID)
		if err != nil {
			return err
		}
		uri, mismatch, err := c.tokenURI(call, bound, agentID)
		if err != nil {
			return err
		}
		wallet, _ := c.agentWallet(call, bound, agentID)
		blockNum, err := client.BlockNumber(ctx)
		if err != nil {
			return err
		}

		rec = &AgentRecord{
			Exists:      true,
			Owner:       owner,
			MetadataURI: uri,
			URIMismatch: mismatch,
			Wallet:      wallet,
			BlockNumber: blockNum,
			RPCUsed:     rpc,
		}
		return nil
	}

	if err := backoff.Retry(op, boCtx); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *RegistryClient) agentExists(call *bind.CallOpts, bound *bind.BoundContract, agentID *big.Int) (bool, error) {
	var out []interface{}
	if err := bound.Call(call, &out, "agentExists", agentID); err != nil {
		// Some deployments encode nonexistence as a revert rather than a
		// bool return; classify well-known revert substrings as "not found"
		// instead of a hard RPC failure, matching the reference client.
		if isNonexistentTokenError(err) {
			return false, nil
		}
		return false, err
	}
	if len(out) == 0 {
		return false, fmt.Errorf("agentExists returned no values")
	}
	exists, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("agentExists returned unexpected type")
	}
	return exists, nil
}

func (c *RegistryClient) ownerOf(call *bind.CallOpts, bound *bind.BoundContract, agentID *big.Int) (common.Address, error) {
	var out []interface{}
	if err := bound.Call(call, &out, "ownerOf", agentID); err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("ownerOf returned unexpected type")
	}
	return addr, nil
}

// tokenURI resolves the agent's metadata URI, preferring the ERC-721-shaped
// tokenURI accessor and falling back to the EIP-8004-specific agentURI
// accessor when it's absent. When both accessors resolve, it cross-checks
// them and reports a mismatch rather than silently picking one.
func (c *RegistryClient) tokenURI(call *bind.CallOpts, bound *bind.BoundContract, agentID *big.Int) (string, bool, error) {
	var tokenOut []interface{}
	tokenErr := bound.Call(call, &tokenOut, "tokenURI", agentID)
	tokenURI, tokenOK := "", false
	if tokenErr == nil {
		tokenURI, tokenOK = tokenOut[0].(string)
	}

	var agentOut []interface{}
	agentErr := bound.Call(call, &agentOut, "agentURI", agentID)
	agentURI, agentOK := "", false
	if agentErr == nil {
		agentURI, agentOK = agentOut[0].(string)
	}

	switch {
	case tokenOK && agentOK:
		return tokenURI, tokenURI != agentURI, nil
	case tokenOK:
		return tokenURI, false, nil
	case agentOK:
		return agentURI, false, nil
	case tokenErr != nil:
		return "", false, tokenErr
	case agentErr != nil:
		return "", false, agentErr
	default:
		return "", false, fmt.Errorf("tokenURI/agentURI returned unexpected type")
	}
}

func (c *RegistryClient) agentWallet(call *bind.CallOpts, bound *bind.BoundContract, agentID *big.Int) (*common.Address, error) {
	var out []interface{}
	if err := bound.Call(call, &out, "getAgentWallet", agentID); err != nil {
		return nil, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("getAgentWallet returned unexpected type")
	}
	if addr == (common.Address{}) {
		return nil, nil
	}
	return &addr, nil
}

func isNonexistentTokenError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nonexistenttoken") || strings.Contains(msg, "nonexistent token") ||
		strings.Contains(msg, "invalid token id") || strings.Contains(msg, "erc721nonexistenttoken")
}
