package executor

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// arbitrageParams mirrors the Solidity ArbitrageParams tuple
// (flash_arbitrage.rs's executeArbitrage input) field-for-field; the
// ABI encoder matches struct fields to tuple components by position,
// so the order here must track the ABI exactly.
type arbitrageParams struct {
	FlashPool        common.Address
	TokenA           common.Address
	TokenB           common.Address
	TokenC           common.Address
	Fee1             *big.Int
	Fee2             *big.Int
	Fee3             *big.Int
	AmountIn         *big.Int
	MinProfit        *big.Int
	ProfitToken      common.Address
	ProfitConvertFee *big.Int
}
