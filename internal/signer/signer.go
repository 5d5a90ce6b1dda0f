// Package signer provides the watchtower's report-signing and on-chain
// transaction capability, mirroring the reference implementation's
// KeyMode/WalletConfig split between private-key, mnemonic, and no-key setups.
package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/watchy-labs/watchy/internal/config"
)

// ErrNoKey is returned by SignBytes when no signer is configured; Address
// signals the same state through its ok return instead.
var ErrNoKey = errors.New("signer: no signing key configured")

// Signer signs report digests and can report the wallet address it signs
// with. Absence of a configured key is a supported state (capability
// interface): callers check Address()'s ok return before relying on signing.
type Signer interface {
	// Address returns the wallet address and whether signing is available.
	Address() (common.Address, bool)
	// SignBytes signs an arbitrary digest with EIP-191 personal-message
	// semantics, returning a 0x-prefixed 65-byte signature.
	SignBytes(digest []byte) (string, error)
	// PrivateKey exposes the underlying key for transaction signing via
	// go-ethereum's bind.TransactOpts. Returns nil if unavailable.
	PrivateKey() *ecdsa.PrivateKey
}

// FromConfig builds a Signer per cfg.Signer, mirroring the reference
// implementation's KeyMode::from_env precedence: an explicit KeyMode wins,
// otherwise MNEMONIC beats PRIVATE_KEY, otherwise signing is disabled.
func FromConfig(cfg config.SignerConfig) (Signer, error) {
	mode := strings.ToLower(cfg.KeyMode)
	switch mode {
	case "mnemonic", "eigen", "eigencloud":
		return newMnemonicSigner(cfg.Mnemonic, cfg.DerivationIndex)
	case "private_key", "privatekey", "key":
		return newPrivateKeySigner(cfg.PrivateKey)
	case "":
		if cfg.Mnemonic != "" {
			return newMnemonicSigner(cfg.Mnemonic, cfg.DerivationIndex)
		}
		if cfg.PrivateKey != "" {
			return newPrivateKeySigner(cfg.PrivateKey)
		}
		return nullSigner{}, nil
	default:
		return nil, fmt.Errorf("unknown signer.key_mode %q", cfg.KeyMode)
	}
}

func newMnemonicSigner(mnemonic string, index uint32) (Signer, error) {
	if mnemonic == "" {
		return nil, fmt.Errorf("signer.mnemonic required for mnemonic key mode")
	}
	key, err := DeriveFromMnemonic(mnemonic, index)
	if err != nil {
		return nil, fmt.Errorf("derive wallet from mnemonic: %w", err)
	}
	return &ecdsaSigner{key: key}, nil
}

func newPrivateKeySigner(hexKey string) (Signer, error) {
	if hexKey == "" {
		return nil, fmt.Errorf("signer.private_key required for private_key key mode")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &ecdsaSigner{key: key}, nil
}

// ecdsaSigner signs with a locally held secp256k1 key.
type ecdsaSigner struct {
	key *ecdsa.PrivateKey
}

func (s *ecdsaSigner) Address() (common.Address, bool) {
	return crypto.PubkeyToAddress(s.key.PublicKey), true
}

func (s *ecdsaSigner) SignBytes(digest []byte) (string, error) {
	hash := accounts.TextHash(digest)
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

func (s *ecdsaSigner) PrivateKey() *ecdsa.PrivateKey { return s.key }

// nullSigner is the capability-absent Signer used when no key is configured.
type nullSigner struct{}

func (nullSigner) Address() (common.Address, bool)   { return common.Address{}, false }
func (nullSigner) SignBytes(_ []byte) (string, error) { return "", ErrNoKey }
func (nullSigner) PrivateKey() *ecdsa.PrivateKey      { return nil }

// CanSign reports whether s holds a usable key, matching WalletConfig::can_sign.
func CanSign(s Signer) bool {
	_, ok := s.Address()
	return ok
}

// on-chain transaction construction lives in internal/onchain, which pulls
// the *ecdsa.PrivateKey via PrivateKey() and builds bind.TransactOpts itself,
// since that requires a chain ID this package does not own.
