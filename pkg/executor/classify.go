package executor

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RevertKind tags which of the contract's known failure shapes a
// revert matched, classifier: "classify via known
// error signatures: ProfitBelowMinimum, ArbitrageFailed_Detailed,
// generic EVM revert".
type RevertKind int

const (
	RevertUnknown RevertKind = iota
	RevertProfitBelowMinimum
	RevertArbitrageFailedDetailed
	RevertGeneric
)

func (k RevertKind) String() string {
	switch k {
	case RevertProfitBelowMinimum:
		return "profit-below-minimum"
	case RevertArbitrageFailedDetailed:
		return "arbitrage-failed-detailed"
	case RevertGeneric:
		return "generic-revert"
	default:
		return "unknown"
	}
}

// Classification is the structured result of decoding a revert.
type Classification struct {
	Kind   RevertKind
	Reason string

	// Populated for RevertProfitBelowMinimum.
	ActualProfit *big.Int
	MinRequired  *big.Int

	// Populated for RevertArbitrageFailedDetailed.
	ProfitOrLoss *big.Int
}

// dataErr is the interface go-ethereum's JSON-RPC transport errors
// satisfy when the node attached revert data to the response.
type dataErr interface {
	ErrorData() interface{}
}

// Classify decodes a simulation or submission error against the
// contract's typed errors, falling back to a generic classification
// when the node returned no structured revert data at all (a plain
// "execution reverted" string, or a transport error).
func Classify(contractABI abi.ABI, err error) Classification {
	if err == nil {
		return Classification{Kind: RevertUnknown}
	}

	data, ok := extractRevertData(err)
	if !ok || len(data) < 4 {
		return Classification{Kind: RevertGeneric, Reason: err.Error()}
	}

	abiErr, lookupErr := contractABI.ErrorByID([4]byte(data[:4]))
	if lookupErr != nil {
		return Classification{Kind: RevertGeneric, Reason: err.Error()}
	}

	args, unpackErr := abiErr.Inputs.Unpack(data[4:])
	if unpackErr != nil {
		return Classification{Kind: RevertGeneric, Reason: fmt.Sprintf("%s: unpack failed: %v", abiErr.Name, unpackErr)}
	}

	switch abiErr.Name {
	case "ProfitBelowMinimum":
		actual, _ := args[0].(*big.Int)
		minReq, _ := args[1].(*big.Int)
		return Classification{
			Kind:         RevertProfitBelowMinimum,
			Reason:       "profit below configured minimum",
			ActualProfit: actual,
			MinRequired:  minReq,
		}
	case "ArbitrageFailed_Detailed":
		reason, _ := args[0].(string)
		profitOrLoss, _ := args[9].(*big.Int)
		return Classification{
			Kind:         RevertArbitrageFailedDetailed,
			Reason:       reason,
			ProfitOrLoss: profitOrLoss,
		}
	default:
		return Classification{Kind: RevertGeneric, Reason: abiErr.Name}
	}
}

func extractRevertData(err error) ([]byte, bool) {
	de, ok := err.(dataErr)
	if !ok {
		return nil, false
	}
	switch v := de.ErrorData().(type) {
	case string:
		b, decodeErr := hexutil.Decode(v)
		if decodeErr != nil {
			return nil, false
		}
		return b, true
	case []byte:
		return v, true
	default:
		return nil, false
	}
}
