package signer

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha512"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// hardenedOffset is added to a path segment index to mark it hardened, per BIP-32.
const hardenedOffset = 0x80000000

// ethDerivationPath is the standard Ethereum account path m/44'/60'/0'/0/{index}.
func ethDerivationPath(index uint32) []uint32 {
	return []uint32{44 + hardenedOffset, 60 + hardenedOffset, 0 + hardenedOffset, 0, index}
}

type extendedKey struct {
	privKey   *big.Int
	chainCode []byte
}

// DeriveFromMnemonic derives the private key at m/44'/60'/0'/0/{index} from a
// BIP-39 mnemonic phrase, using no HD-wallet library (the example corpus does
// not carry one — see DESIGN.md) but the already-adopted go-bip39 seed
// derivation plus a hand-rolled BIP-32 CKD over go-ethereum's secp256k1 curve
// parameters. No passphrase is applied, matching the reference wallet.
func DeriveFromMnemonic(mnemonic string, index uint32) (*ecdsa.PrivateKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic phrase")
	}
	seed := bip39.NewSeed(mnemonic, "")

	key, err := masterKeyFromSeed(seed)
	if err != nil {
		return nil, err
	}

	for _, segment := range ethDerivationPath(index) {
		key, err = deriveChild(key, segment)
		if err != nil {
			return nil, fmt.Errorf("derive path segment %d: %w", segment, err)
		}
	}

	privKeyBytes := make([]byte, 32)
	key.privKey.FillBytes(privKeyBytes)
	return crypto.ToECDSA(privKeyBytes)
}

func masterKeyFromSeed(seed []byte) (*extendedKey, error) {
	mac := hmac.New(sha512.New, []byte("Bitcoin seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)

	privKey := new(big.Int).SetBytes(sum[:32])
	n := crypto.S256().Params().N
	if privKey.Sign() == 0 || privKey.Cmp(n) >= 0 {
		return nil, fmt.Errorf("invalid master key derived from seed")
	}
	return &extendedKey{privKey: privKey, chainCode: sum[32:]}, nil
}

func deriveChild(parent *extendedKey, index uint32) (*extendedKey, error) {
	n := crypto.S256().Params().N

	var data []byte
	if index >= hardenedOffset {
		// Hardened derivation: 0x00 || parent private key || index.
		parentBytes := make([]byte, 32)
		parent.privKey.FillBytes(parentBytes)
		data = append([]byte{0x00}, parentBytes...)
	} else {
		// Normal derivation: parent compressed public key || index.
		x, y := crypto.S256().ScalarBaseMult(padTo32(parent.privKey.Bytes()))
		pub := &ecdsa.PublicKey{Curve: crypto.S256(), X: x, Y: y}
		data = crypto.CompressPubkey(pub)
	}
	idxBytes := []byte{byte(index >> 24), byte(index >> 16), byte(index >> 8), byte(index)}
	data = append(data, idxBytes...)

	mac := hmac.New(sha512.New, parent.chainCode)
	mac.Write(data)
	sum := mac.Sum(nil)

	il := new(big.Int).SetBytes(sum[:32])
	if il.Cmp(n) >= 0 {
		return nil, fmt.Errorf("derived IL out of range")
	}

	child := new(big.Int).Add(il, parent.privKey)
	child.Mod(child, n)
	if child.Sign() == 0 {
		return nil, fmt.Errorf("derived child key is zero")
	}

	return &extendedKey{privKey: child, chainCode: sum[32:]}, nil
}

func padTo32(b []byte) []byte {
	if len(b) >= 32 {
		return b
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}
