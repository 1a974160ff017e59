// Package relay is the Relay Client: a lightweight
// JSON-envelope client for a private-bundle relay speaking
// eth_sendBundle/eth_callBundle/flashbots_getBundleStats, signed by an
// identity key that must never be the funding key.
package relay

import "encoding/json"

// jsonRPCRequest is the standard JSON-RPC 2.0 envelope every relay
// verb is wrapped in.
type jsonRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

// bundleRequest is the eth_sendBundle/eth_callBundle params object:
// target block number (hex), ordered signed transactions (hex), and
// the optional timestamp window and allow-revert list.
type bundleRequest struct {
	Txs               []string `json:"txs"`
	BlockNumber       string   `json:"blockNumber"`
	MinTimestamp      *uint64  `json:"minTimestamp,omitempty"`
	MaxTimestamp      *uint64  `json:"maxTimestamp,omitempty"`
	RevertingTxHashes []string `json:"revertingTxHashes,omitempty"`
}

// sendBundleResult is eth_sendBundle's result payload: the relay's
// computed bundle hash.
type sendBundleResult struct {
	BundleHash string `json:"bundleHash"`
}

// simulationResult is one transaction's outcome inside
// eth_callBundle's result array.
type simulationResult struct {
	TxHash    string `json:"txHash"`
	GasUsed   uint64 `json:"gasUsed"`
	Error     string `json:"error,omitempty"`
	Revert    string `json:"revert,omitempty"`
	EthSentTo string `json:"toAddress,omitempty"`
}

// callBundleResult is eth_callBundle's result payload.
type callBundleResult struct {
	BundleGasPrice    string             `json:"bundleGasPrice"`
	BundleHash        string             `json:"bundleHash"`
	CoinbaseDiff      string             `json:"coinbaseDiff"`
	Results           []simulationResult `json:"results"`
	StateBlockNumber  uint64             `json:"stateBlockNumber"`
	TotalGasUsed      uint64             `json:"totalGasUsed"`
}

// consideredBlock is one entry in flashbots_getBundleStats's
// considered-by-relay history.
type consideredBlock struct {
	BlockNumber uint64 `json:"blockNumber"`
	Timestamp   int64  `json:"timestamp"`
}

// bundleStatsResult is flashbots_getBundleStats's result payload.
type bundleStatsResult struct {
	IsSimulated     bool              `json:"isSimulated"`
	IsSentToMiners  bool              `json:"isSentToMiners"`
	IsHighPriority  bool              `json:"isHighPriority"`
	ConsideredBlocks []consideredBlock `json:"consideredByBuildersAt"`
}
