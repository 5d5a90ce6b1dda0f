package onchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/watchy-labs/watchy/internal/chains"
	"github.com/watchy-labs/watchy/internal/signer"
)

// reputationRegistryABI covers the single write Watchy performs: submitting
// a feedback tuple keyed by agent ID, carrying the audit score and the CID
// of the uploaded report.
const reputationRegistryABI = `[
  {"inputs":[{"internalType":"uint256","name":"agentId","type":"uint256"},{"internalType":"uint8","name":"score","type":"uint8"},{"internalType":"string","name":"reportCid","type":"string"}],"name":"submitFeedback","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// ReputationClient writes audit results to the reputation registry.
type ReputationClient struct {
	chainID uint64
	addr    common.Address
	abi     abi.ABI
	signer  signer.Signer
}

// NewReputationClient builds a client for chainCfg's deployed reputation
// registry, signing transactions with s.
func NewReputationClient(chainCfg chains.Config, s signer.Signer) (*ReputationClient, error) {
	if chainCfg.ReputationAddress == "" {
		return nil, fmt.Errorf("chain %d (%s) has no reputation registry deployed", chainCfg.ChainID, chainCfg.Name)
	}
	parsed, err := abi.JSON(strings.NewReader(reputationRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("parse reputation abi: %w", err)
	}
	return &ReputationClient{
		chainID: chainCfg.ChainID,
		addr:    common.HexToAddress(chainCfg.ReputationAddress),
		abi:     parsed,
		signer:  s,
	}, nil
}

// SubmitFeedback writes (agentID, score, reportCID) to the reputation
// registry over rpc, returning the transaction hash.
func (c *ReputationClient) SubmitFeedback(ctx context.Context, rpc string, agentID *big.Int, score uint8, reportCID string) (string, error) {
	if !signer.CanSign(c.signer) {
		return "", fmt.Errorf("no signer configured, cannot write to reputation registry")
	}

	client, err := ethclient.DialContext(ctx, rpc)
	if err != nil {
		return "", fmt.Errorf("dial rpc: %w", err)
	}
	defer client.Close()

	auth, err := bind.NewKeyedTransactorWithChainID(c.signer.PrivateKey(), new(big.Int).SetUint64(c.chainID))
	if err != nil {
		return "", fmt.Errorf("build transactor: %w", err)
	}
	auth.Context = ctx

	bound := bind.NewBoundContract(c.addr, c.abi, client, client, client)
	tx, err := bound.Transact(auth, "submitFeedback", agentID, score, reportCID)
	if err != nil {
		return "", fmt.Errorf("submit feedback: %w", err)
	}

	receipt, err := waitMined(ctx, client, tx)
	if err != nil {
		// The tx was broadcast; a confirmation timeout doesn't mean it failed,
		// so this is still reported as a success with its hash.
		return tx.Hash().Hex(), nil
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return tx.Hash().Hex(), fmt.Errorf("feedback tx %s reverted on chain", tx.Hash().Hex())
	}

	return tx.Hash().Hex(), nil
}

// waitMined polls for tx's receipt until one is available or ctx expires.
// SubmitFeedback treats an expired wait as success, since the tx was
// already broadcast; only a mined-and-reverted receipt is reported as failure.
func waitMined(ctx context.Context, client *ethclient.Client, tx *types.Transaction) (*types.Receipt, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		receipt, err := client.TransactionReceipt(ctx, tx.Hash())
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
