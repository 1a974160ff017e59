package executor

// flashArbitrageABI is the FlashArbitrage contract's call/event/error
// surface the Executor needs: the executeArbitrage entrypoint, its two
// outcome events, and its two typed revert errors — trimmed to the
// entries the Executor actually calls or decodes (owner/withdraw/admin
// functions have no caller here).
const flashArbitrageABI = `[
	{
		"inputs": [
			{
				"components": [
					{"name": "flashPool", "type": "address"},
					{"name": "tokenA", "type": "address"},
					{"name": "tokenB", "type": "address"},
					{"name": "tokenC", "type": "address"},
					{"name": "fee1", "type": "uint24"},
					{"name": "fee2", "type": "uint24"},
					{"name": "fee3", "type": "uint24"},
					{"name": "amountIn", "type": "uint256"},
					{"name": "minProfit", "type": "uint256"},
					{"name": "profitToken", "type": "address"},
					{"name": "profitConvertFee", "type": "uint24"}
				],
				"name": "params",
				"type": "tuple"
			}
		],
		"name": "executeArbitrage",
		"outputs": [{"name": "profit", "type": "uint256"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "tokenA", "type": "address"},
			{"indexed": true, "name": "tokenB", "type": "address"},
			{"indexed": true, "name": "tokenC", "type": "address"},
			{"indexed": false, "name": "amountIn", "type": "uint256"},
			{"indexed": false, "name": "amountOut", "type": "uint256"},
			{"indexed": false, "name": "profit", "type": "uint256"}
		],
		"name": "ArbitrageExecuted",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "name": "inputAmount", "type": "uint256"},
			{"indexed": false, "name": "step1Out", "type": "uint256"},
			{"indexed": false, "name": "step2Out", "type": "uint256"},
			{"indexed": false, "name": "step3Out", "type": "uint256"},
			{"indexed": false, "name": "flashFee", "type": "uint256"},
			{"indexed": false, "name": "profitOrLoss", "type": "int256"}
		],
		"name": "ArbitrageResult",
		"type": "event"
	},
	{
		"inputs": [
			{"name": "reason", "type": "string"},
			{"name": "tokenA", "type": "address"},
			{"name": "tokenB", "type": "address"},
			{"name": "tokenC", "type": "address"},
			{"name": "inputAmount", "type": "uint256"},
			{"name": "step1Out", "type": "uint256"},
			{"name": "step2Out", "type": "uint256"},
			{"name": "step3Out", "type": "uint256"},
			{"name": "amountOwed", "type": "uint256"},
			{"name": "profitOrLoss", "type": "int256"}
		],
		"name": "ArbitrageFailed_Detailed",
		"type": "error"
	},
	{
		"inputs": [
			{"name": "actualProfit", "type": "uint256"},
			{"name": "minRequired", "type": "uint256"},
			{"name": "inputAmount", "type": "uint256"},
			{"name": "outputAmount", "type": "uint256"}
		],
		"name": "ProfitBelowMinimum",
		"type": "error"
	}
]`
