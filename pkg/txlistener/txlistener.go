// Package txlistener polls for a submitted transaction's receipt,
// generalizing the functional-options TxListener cmd/main.go wired up
// (NewTxListener(client, WithPollInterval(...), WithTimeout(...))) into
// a reusable collaborator for the Executor's Submitted->{Included,
// Reverted,Timeout} state transition.
package txlistener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrTimeout is returned by WaitForTransaction when no receipt shows
// up within the configured timeout.
var ErrTimeout = errors.New("txlistener: timed out waiting for receipt")

type Option func(*TxListener)

// WithPollInterval sets how often the listener checks for a receipt.
func WithPollInterval(d time.Duration) Option {
	return func(l *TxListener) { l.pollInterval = d }
}

// WithTimeout bounds how long WaitForTransaction will wait in total.
func WithTimeout(d time.Duration) Option {
	return func(l *TxListener) { l.timeout = d }
}

// receiptFetcher is the narrow slice of *ethclient.Client this package
// depends on, so tests can swap in a fake without a live node.
type receiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// TxListener polls an RPC endpoint for a transaction's receipt.
type TxListener struct {
	client       receiptFetcher
	pollInterval time.Duration
	timeout      time.Duration
}

// NewTxListener builds a TxListener with sane defaults (3s poll, 5m
// timeout, matching cmd/main.go's wiring), overridable via opts.
func NewTxListener(client *ethclient.Client, opts ...Option) *TxListener {
	l := &TxListener{client: client, pollInterval: 3 * time.Second, timeout: 5 * time.Minute}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WaitForTransaction blocks until txHash's receipt is available, the
// configured timeout elapses, or ctx is cancelled.
func (l *TxListener) WaitForTransaction(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	deadline := time.Now().Add(l.timeout)
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("txlistener: fetch receipt for %s: %w", txHash, err)
		}

		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
