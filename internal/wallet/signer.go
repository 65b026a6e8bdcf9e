// Package wallet defines how the acting wallet signs ledger writes.
// Key custody stays outside this module; KeySigner only wraps a key it is handed.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/smartdevs17/content-rewards/pkg/utils"
)

// Signer signs write payloads on behalf of a wallet
type Signer interface {
	Address() common.Address
	Sign(ctx context.Context, digest common.Hash) ([]byte, error)
}

// KeySigner signs with an in-memory secp256k1 key
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeySigner creates a signer from a hex encoded private key
func NewKeySigner(hexKey string) (*KeySigner, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Wallet private key is not configured", "")
	}

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeConfiguration, "Invalid wallet private key", err)
	}

	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// GenerateKeySigner creates a signer with a fresh random key
func GenerateKeySigner() (*KeySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeInternal, "Failed to generate wallet key", err)
	}
	return &KeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address returns the signer's wallet address
func (s *KeySigner) Address() common.Address {
	return s.address
}

// Sign produces a 65 byte recoverable signature over digest
func (s *KeySigner) Sign(ctx context.Context, digest common.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeInternal, "Failed to sign payload", err)
	}
	return sig, nil
}

// RecoverAddress returns the wallet that produced sig over digest
func RecoverAddress(digest common.Hash, sig []byte) (common.Address, error) {
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, utils.WrapAppError(utils.ErrCodeValidation, "Invalid signature", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
