// Package contractclient is a thin, ABI-driven wrapper around
// ethclient for calling and sending transactions against an arbitrary
// contract: one Call/Send/Abi/ParseReceipt surface that works against
// any ABI the caller loads, rather than one fixed set of contracts.
package contractclient

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ContractClient is the collaborator surface the engine's higher-level
// packages depend on instead of a concrete ethclient.Client, so
// executor logic can be exercised against a fake in tests.
type ContractClient interface {
	ContractAddress() common.Address
	Abi() abi.ABI
	Call(ctx context.Context, caller *common.Address, method string, args ...interface{}) ([]interface{}, error)
	Sign(ctx context.Context, from *common.Address, key *ecdsa.PrivateKey, gasLimit *uint64, method string, args ...interface{}) (*types.Transaction, error)
	Send(ctx context.Context, from *common.Address, key *ecdsa.PrivateKey, gasLimit *uint64, method string, args ...interface{}) (common.Hash, error)
	TransactionData(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
	DecodeTransaction(data []byte) (string, []interface{}, error)
	ParseReceipt(receipt *types.Receipt) (string, error)
}

// Client implements ContractClient against a live ethclient connection.
type Client struct {
	rpc     *ethclient.Client
	address common.Address
	abi     abi.ABI
	chainID *big.Int
}

// NewContractClient parses contractABI (a JSON ABI document) and binds
// it to address on the chain rpc is connected to.
func NewContractClient(ctx context.Context, rpc *ethclient.Client, address common.Address, contractABI string) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("contractclient: parse ABI: %w", err)
	}
	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("contractclient: fetch chain id: %w", err)
	}
	return &Client{rpc: rpc, address: address, abi: parsed, chainID: chainID}, nil
}

func (c *Client) ContractAddress() common.Address { return c.address }

func (c *Client) Abi() abi.ABI { return c.abi }

// Call performs a read-only eth_call against method, decoding the
// output into Go values per the ABI's declared return types.
func (c *Client) Call(ctx context.Context, caller *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("contractclient: pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &c.address, Data: input}
	if caller != nil {
		msg.From = *caller
	}

	out, err := c.rpc.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("contractclient: call %s: %w", method, err)
	}

	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("contractclient: unpack %s: %w", method, err)
	}
	return values, nil
}

// Sign builds and signs a transaction calling method with args without
// broadcasting it, the step the private-relay submission path needs
// (a bundle carries signed-but-unsent transactions).
func (c *Client) Sign(ctx context.Context, from *common.Address, key *ecdsa.PrivateKey, gasLimit *uint64, method string, args ...interface{}) (*types.Transaction, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("contractclient: pack %s: %w", method, err)
	}

	var fromAddr common.Address
	if from != nil {
		fromAddr = *from
	} else {
		fromAddr = crypto.PubkeyToAddress(key.PublicKey)
	}

	nonce, err := c.rpc.PendingNonceAt(ctx, fromAddr)
	if err != nil {
		return nil, fmt.Errorf("contractclient: fetch nonce: %w", err)
	}

	gasTip, err := c.rpc.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("contractclient: suggest gas tip: %w", err)
	}
	head, err := c.rpc.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("contractclient: fetch head: %w", err)
	}
	gasFeeCap := new(big.Int).Add(gasTip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	limit := uint64(0)
	if gasLimit != nil {
		limit = *gasLimit
	} else {
		est, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{From: fromAddr, To: &c.address, Data: input})
		if err != nil {
			return nil, fmt.Errorf("contractclient: estimate gas for %s: %w", method, err)
		}
		limit = est
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: gasTip,
		GasFeeCap: gasFeeCap,
		Gas:       limit,
		To:        &c.address,
		Data:      input,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return nil, fmt.Errorf("contractclient: sign %s: %w", method, err)
	}
	return signed, nil
}

// Send signs and submits a transaction calling method with args, using
// key to sign and gasLimit if non-nil (otherwise estimated).
func (c *Client) Send(ctx context.Context, from *common.Address, key *ecdsa.PrivateKey, gasLimit *uint64, method string, args ...interface{}) (common.Hash, error) {
	signed, err := c.Sign(ctx, from, key, gasLimit, method, args...)
	if err != nil {
		return common.Hash{}, err
	}
	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("contractclient: submit %s: %w", method, err)
	}
	return signed.Hash(), nil
}

// TransactionData fetches a previously submitted transaction by hash.
func (c *Client) TransactionData(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error) {
	tx, isPending, err := c.rpc.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, false, fmt.Errorf("contractclient: fetch tx %s: %w", txHash, err)
	}
	return tx, isPending, nil
}

// DecodeTransaction decodes a transaction's calldata against this
// client's ABI, returning the matched method name and its arguments.
func (c *Client) DecodeTransaction(data []byte) (string, []interface{}, error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("contractclient: calldata too short: %d bytes", len(data))
	}
	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return "", nil, fmt.Errorf("contractclient: unrecognized selector: %w", err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return "", nil, fmt.Errorf("contractclient: unpack %s args: %w", method.Name, err)
	}
	return method.Name, args, nil
}

// parsedLog mirrors one decoded event as a JSON object so downstream
// parsing code can walk an array of {EventName, Parameter} objects.
type parsedLog struct {
	EventName string                 `json:"EventName"`
	Parameter map[string]interface{} `json:"Parameter"`
}

// ParseReceipt decodes every log in receipt that matches this client's
// ABI and address into a JSON array of named events. Only non-indexed
// fields are decoded into Parameter; indexed fields live in the topic
// hashes and are not unpacked here.
func (c *Client) ParseReceipt(receipt *types.Receipt) (string, error) {
	var events []parsedLog
	for _, lg := range receipt.Logs {
		if lg.Address != c.address || len(lg.Topics) == 0 {
			continue
		}
		ev, err := c.abi.EventByID(lg.Topics[0])
		if err != nil {
			continue // not one of this contract's declared events
		}
		params := make(map[string]interface{})
		if err := c.abi.UnpackIntoMap(params, ev.Name, lg.Data); err != nil {
			continue
		}
		events = append(events, parsedLog{EventName: ev.Name, Parameter: params})
	}
	out, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("contractclient: marshal parsed receipt: %w", err)
	}
	return string(out), nil
}
