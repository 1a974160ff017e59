// Package signer holds the engine's ECDSA signing key: a private key
// plus its derived address, constructed once at startup and threaded
// into every contractclient.Client.Send call. Key provisioning
// (custody, rotation, HSMs) is out of scope; a Signer is always built
// from key material the caller already has in hand.
package signer

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer pairs a private key with its derived address.
type Signer struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// FromHex builds a Signer from a hex-encoded private key (with or
// without the 0x prefix), the same string shape
// internal/util.Decrypt returns.
func FromHex(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(trim0x(hexKey))
	if err != nil {
		return nil, fmt.Errorf("signer: parse private key: %w", err)
	}
	return &Signer{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (s *Signer) PrivateKey() *ecdsa.PrivateKey { return s.key }

func (s *Signer) Address() common.Address { return s.addr }

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
