package signer

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHex_DerivesAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	raw := crypto.FromECDSA(key)
	s, err := FromHex("0x" + hex.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())
}

func TestFromHex_RejectsGarbage(t *testing.T) {
	_, err := FromHex("not-a-key")
	assert.Error(t, err)
}
