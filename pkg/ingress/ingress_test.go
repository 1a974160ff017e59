package ingress

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

// twosComplement256 renders v (positive or negative) as a 32-byte
// big-endian two's-complement word, mirroring how an on-chain Swap
// event actually encodes int256 amounts.
func twosComplement256(v int64) []byte {
	out := make([]byte, 32)
	mod := new(big.Int).Lsh(big.NewInt(1), 256)
	n := big.NewInt(v)
	if n.Sign() < 0 {
		n.Add(n, mod)
	}
	b := n.Bytes()
	copy(out[32-len(b):], b)
	return out
}

func buildSwapData(amount0, amount1 int64, sqrtPriceX96, liquidity uint64, tick int32) []byte {
	data := make([]byte, 160)
	copy(data[0:32], twosComplement256(amount0))
	copy(data[32:64], twosComplement256(amount1))

	sp := new(big.Int).SetUint64(sqrtPriceX96).Bytes()
	copy(data[96-len(sp):96], sp)

	liq := new(big.Int).SetUint64(liquidity).Bytes()
	copy(data[128-len(liq):128], liq)

	tb := []byte{byte(tick >> 16), byte(tick >> 8), byte(tick)}
	copy(data[157:160], tb)
	return data
}

func TestDecodeSwapLog_RejectsShortPayload(t *testing.T) {
	lg := gethtypes.Log{Data: make([]byte, 128)}
	_, fault := DecodeSwapLog(lg, domain.PoolIdentity{})
	assert.True(t, fault.IsFault())
}

func TestDecodeSwapLog_TickSignExtension(t *testing.T) {
	data := buildSwapData(1000, -2000, 0, 0, -2)
	lg := gethtypes.Log{
		Data:        data,
		Address:     common.HexToAddress("0x1"),
		BlockNumber: 42,
	}
	update, fault := DecodeSwapLog(lg, domain.PoolIdentity{Address: common.HexToAddress("0x1")})
	require.False(t, fault.IsFault())
	assert.Equal(t, int32(-2), update.Tick)
	assert.Equal(t, uint64(42), update.Block)
}

func TestDecodeSwapLog_NegativeAmountSignFlag(t *testing.T) {
	data := buildSwapData(1000, -2000, 0, 0, 5)
	lg := gethtypes.Log{Data: data, Address: common.HexToAddress("0x1")}
	update, fault := DecodeSwapLog(lg, domain.PoolIdentity{Address: common.HexToAddress("0x1")})
	require.False(t, fault.IsFault())
	assert.False(t, update.Amount0Neg)
	assert.True(t, update.Amount1Neg)
	assert.Equal(t, "2000", update.Amount1.String())
}
