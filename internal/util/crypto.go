// Package util carries the small set of helpers the engine's
// entrypoints need and that have no natural home in a domain package:
// decrypting the signer's private key out of the environment and
// turning a transaction receipt into its wei gas cost.
package util

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

// Decrypt recovers a hex-encoded ECDSA private key from encryptedPK
// (hex: 12-byte GCM nonce || ciphertext || tag) using key as the
// AES-256-GCM key, mirroring cmd/main.go's ENC_PK/KEY pair of
// environment variables.
func Decrypt(key []byte, encryptedPK string) (string, error) {
	raw, err := hex.DecodeString(encryptedPK)
	if err != nil {
		return "", fmt.Errorf("util: decode encrypted key hex: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("util: build AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("util: build GCM: %w", err)
	}
	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("util: encrypted key shorter than nonce size")
	}

	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("util: decrypt private key: %w", err)
	}
	return string(plain), nil
}

// GasCostWei returns gasUsed * effectiveGasPrice for a confirmed
// receipt.
func GasCostWei(receipt *types.Receipt) *big.Int {
	if receipt == nil || receipt.EffectiveGasPrice == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), receipt.EffectiveGasPrice)
}
