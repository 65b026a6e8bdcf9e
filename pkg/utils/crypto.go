package utils

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// IsValidAddress checks if a string is a valid wallet address
func IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// NormalizeAddress normalizes an address to lowercase with 0x prefix
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if !strings.HasPrefix(address, "0x") && !strings.HasPrefix(address, "0X") {
		address = "0x" + address
	}
	return strings.ToLower(address)
}

// ParseAddress validates and converts a hex wallet address
func ParseAddress(address string) (common.Address, error) {
	if !IsValidAddress(address) {
		return common.Address{}, NewAppError(ErrCodeValidation, "Invalid wallet address", address)
	}
	return common.HexToAddress(address), nil
}

// PayloadHash returns the keccak256 hash a signer commits to
func PayloadHash(payload []byte) common.Hash {
	return crypto.Keccak256Hash(payload)
}
