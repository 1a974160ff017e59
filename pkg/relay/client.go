package relay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

// relayURLForChain maps mainnet/Goerli/Sepolia to their public relay;
// anything else falls back to the mainnet relay (overridable per
// chain via WithRelayURL).
func relayURLForChain(chain types.ChainID) string {
	switch chain {
	case 1:
		return "https://relay.flashbots.net"
	case 5:
		return "https://relay-goerli.flashbots.net"
	case 11155111:
		return "https://relay-sepolia.flashbots.net"
	default:
		return "https://relay.flashbots.net"
	}
}

// Client submits bundles to a private relay, signing each request
// body with an identity key that must be distinct from the
// funding/execution key.
type Client struct {
	http         *http.Client
	identityKey  *ecdsa.PrivateKey
	identityAddr common.Address
	relayURLs    map[types.ChainID]string
	maxRetries   int
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker[[]byte]
	log          *zap.Logger
}

type Option func(*Client)

func WithRelayURL(chain types.ChainID, url string) Option {
	return func(c *Client) { c.relayURLs[chain] = url }
}

func WithMaxBlockRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

// NewClient builds a relay client signing every request with
// identityKeyHex (hex-encoded ECDSA key, 0x prefix optional).
func NewClient(identityKeyHex string, log *zap.Logger, opts ...Option) (*Client, error) {
	key, err := crypto.HexToECDSA(trim0x(identityKeyHex))
	if err != nil {
		return nil, fmt.Errorf("relay: parse identity key: %w", err)
	}

	c := &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		identityKey:  key,
		identityAddr: crypto.PubkeyToAddress(key.PublicKey),
		relayURLs:    make(map[types.ChainID]string),
		maxRetries:   3,
		limiter:      rate.NewLimiter(rate.Limit(5), 5),
		log:          log,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "relay-submit",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if c.log != nil {
				c.log.Warn("relay: circuit breaker state change", zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
			}
		},
	})
	return c, nil
}

func trim0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func (c *Client) urlFor(chain types.ChainID) string {
	if u, ok := c.relayURLs[chain]; ok {
		return u
	}
	return relayURLForChain(chain)
}

// SubmitBundle implements pkg/executor.BundleSubmitter: it wraps
// signedTxHex in a single-transaction bundle and submits it against
// up to maxRetries successive target blocks starting at targetBlock
// (or targetBlock itself if the caller already knows which block to
// aim for), re-sending the same signed transaction per block since
// only the bundle's target-block field changes between attempts.
// Acceptance by eth_sendBundle is not inclusion, so a successful send
// does not stop the loop early: every submitted bundle's relay stats
// are polled for a strong forwarding signal (sent to miners / high
// priority), and only that stops the retarget loop with included
// true. Exhausting every target block without that signal is a
// non-error "not included after budget" outcome -- included=false,
// err=nil -- leaving true on-chain inclusion to the caller's receipt
// listener. An actual Go error is returned only when no attempt's
// eth_sendBundle call succeeded (transport error, non-200 status, or a
// JSON-RPC error response from the relay).
func (c *Client) SubmitBundle(ctx context.Context, chain types.ChainID, signedTxHex string, targetBlock uint64) (bool, common.Hash, error) {
	txHash, err := txHashFromRaw(signedTxHex)
	if err != nil {
		return false, common.Hash{}, err
	}

	retries := c.maxRetries
	if retries <= 0 {
		retries = 1
	}

	var lastErr error
	anySucceeded := false
	for i := 0; i < retries; i++ {
		block := targetBlock + uint64(i)
		bundle, buildErr := NewBundleBuilder().TargetBlock(block).PushTransaction(signedTxHex).Build()
		if buildErr != nil {
			return false, common.Hash{}, buildErr
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return false, common.Hash{}, fmt.Errorf("relay: rate limit wait: %w", err)
		}

		raw, err := c.breaker.Execute(func() ([]byte, error) {
			return c.call(ctx, chain, "eth_sendBundle", []interface{}{bundle.toParams()})
		})
		if err != nil {
			lastErr = err
			if c.log != nil {
				c.log.Warn("relay: bundle submit failed", zap.Uint64("chain", uint64(chain)), zap.Uint64("target_block", block), zap.Error(err))
			}
			continue
		}
		anySucceeded = true

		var sent sendBundleResult
		if jsonErr := json.Unmarshal(raw, &sent); jsonErr == nil && sent.BundleHash != "" {
			if stats, statsErr := c.GetBundleStats(ctx, chain, sent.BundleHash, block); statsErr == nil && (stats.IsSentToMiners || stats.IsHighPriority) {
				return true, txHash, nil
			}
		}
		// Accepted but unconfirmed: retarget the next block rather than
		// stopping here, since acceptance alone is not inclusion.
	}

	if !anySucceeded {
		return false, common.Hash{}, fmt.Errorf("relay: all %d submission attempts failed: %w", retries, lastErr)
	}
	return false, txHash, nil
}

// GetBundleStats queries flashbots_getBundleStats for bundleHash,
// reporting whether the relay has simulated and forwarded it.
func (c *Client) GetBundleStats(ctx context.Context, chain types.ChainID, bundleHash string, blockNumber uint64) (bundleStatsResult, error) {
	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.call(ctx, chain, "flashbots_getBundleStats", []interface{}{map[string]interface{}{
			"bundleHash":  bundleHash,
			"blockNumber": fmt.Sprintf("0x%x", blockNumber),
		}})
	})
	if err != nil {
		return bundleStatsResult{}, err
	}
	var stats bundleStatsResult
	if err := json.Unmarshal(raw, &stats); err != nil {
		return bundleStatsResult{}, fmt.Errorf("relay: decode bundle stats: %w", err)
	}
	return stats, nil
}

// SimulateBundle runs eth_callBundle for bundle against state at
// blockNumber, a pre-submission dry run available to the Executor
// before committing to a target block.
func (c *Client) SimulateBundle(ctx context.Context, chain types.ChainID, bundle Bundle, blockNumber uint64) (callBundleResult, error) {
	params := bundle.toParams()
	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.call(ctx, chain, "eth_callBundle", []interface{}{params, fmt.Sprintf("0x%x", blockNumber)})
	})
	if err != nil {
		return callBundleResult{}, err
	}
	var result callBundleResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return callBundleResult{}, fmt.Errorf("relay: decode simulate result: %w", err)
	}
	return result, nil
}

// call POSTs a single JSON-RPC request to chain's relay, attaching the
// Flashbots-style identity signature header: "address:hex-signature"
// over the keccak256 of the request body.
func (c *Client) call(ctx context.Context, chain types.ChainID, method string, params []interface{}) ([]byte, error) {
	req := jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("relay: encode %s request: %w", method, err)
	}

	digest := crypto.Keccak256Hash(body)
	sig, err := crypto.Sign(digest.Bytes(), c.identityKey)
	if err != nil {
		return nil, fmt.Errorf("relay: sign %s request: %w", method, err)
	}
	signatureHeader := fmt.Sprintf("%s:%s", c.identityAddr.Hex(), hexutil.Encode(sig))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.urlFor(chain), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("relay: build %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Flashbots-Signature", signatureHeader)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("relay: %s request: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("relay: read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay: %s returned status %d: %s", method, resp.StatusCode, raw)
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, fmt.Errorf("relay: decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("relay: %s relay error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func txHashFromRaw(signedTxHex string) (common.Hash, error) {
	raw, err := hexutil.Decode(signedTxHex)
	if err != nil {
		return common.Hash{}, fmt.Errorf("relay: decode signed tx hex: %w", err)
	}
	return crypto.Keccak256Hash(raw), nil
}
