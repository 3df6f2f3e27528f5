package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
	"github.com/futarchy-fi/futarchy-bots/internal/infrastructure/metrics"
)

// Backend is the subset of ethclient.Client the wrapper uses
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Options tunes timeouts, retries and request rate
type Options struct {
	CallTimeout       time.Duration
	ReadRetries       uint
	RetryDelay        time.Duration
	RequestsPerSecond float64
	PollInterval      time.Duration
}

func DefaultOptions() Options {
	return Options{
		CallTimeout:       10 * time.Second,
		ReadRetries:       3,
		RetryDelay:        400 * time.Millisecond,
		RequestsPerSecond: 20,
		PollInterval:      2 * time.Second,
	}
}

// Client wraps the go-ethereum client with bounded read retries, a request
// rate limit and per-call timeouts. Writes are never retried.
type Client struct {
	backend Backend
	opts    Options
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	chainID *big.Int
}

// NewClient dials an RPC endpoint
func NewClient(rpcURL string, opts Options, logger *zap.Logger, m *metrics.Metrics) (*Client, error) {
	backend, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", entities.ErrRPCUnavailable, rpcURL, err)
	}
	return NewClientWithBackend(backend, opts, logger, m), nil
}

func NewClientWithBackend(backend Backend, opts Options, logger *zap.Logger, m *metrics.Metrics) *Client {
	defaults := DefaultOptions()
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaults.CallTimeout
	}
	if opts.ReadRetries == 0 {
		opts.ReadRetries = defaults.ReadRetries
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		backend: backend,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		metrics: m,
	}
}

// Close closes the underlying client connection
func (c *Client) Close() {
	c.backend.Close()
}

// read runs fn with a per-attempt timeout and retries transient failures
// with exponential backoff. A transient failure that survives every attempt
// surfaces as entities.ErrRPCUnavailable.
func (c *Client) read(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	err := retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
			defer cancel()
			return fn(callCtx)
		},
		retry.Context(ctx),
		retry.Attempts(c.opts.ReadRetries),
		retry.Delay(c.opts.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && isTransient(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.metrics.ObserveRetry(method)
			c.logger.Debug("retrying chain read",
				zap.String("method", method),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %s: %v", entities.ErrRPCUnavailable, method, err)
	}
	return err
}

// isTransient reports whether a failed read is worth retrying
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "timeout", "too many requests", "429", "502", "503", "eof"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// ChainID returns the connected chain id, read once and cached
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.RLock()
	id := c.chainID
	c.mu.RUnlock()
	if id != nil {
		return new(big.Int).Set(id), nil
	}

	err := c.read(ctx, "eth_chainId", func(ctx context.Context) error {
		var err error
		id, err = c.backend.ChainID(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.chainID = id
	c.mu.Unlock()
	return new(big.Int).Set(id), nil
}

// CallContract executes a read-only contract call against the latest block
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var out []byte
	err := c.read(ctx, "eth_call", func(ctx context.Context) error {
		var err error
		out, err = c.backend.CallContract(ctx, msg, nil)
		return err
	})
	return out, err
}

// BlockNumber returns the current block number
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.read(ctx, "eth_blockNumber", func(ctx context.Context) error {
		var err error
		n, err = c.backend.BlockNumber(ctx)
		return err
	})
	return n, err
}

// EstimateGas estimates the gas required for a transaction. A revert during
// estimation is returned unchanged; callers treat it as fatal.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := c.read(ctx, "eth_estimateGas", func(ctx context.Context) error {
		var err error
		gas, err = c.backend.EstimateGas(ctx, msg)
		return err
	})
	return gas, err
}

// SuggestGasPrice suggests a gas price based on recent blocks
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := c.read(ctx, "eth_gasPrice", func(ctx context.Context) error {
		var err error
		price, err = c.backend.SuggestGasPrice(ctx)
		return err
	})
	return price, err
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.read(ctx, "eth_getTransactionCount", func(ctx context.Context) error {
		var err error
		nonce, err = c.backend.PendingNonceAt(ctx, account)
		return err
	})
	return nonce, err
}

// Submit signs and broadcasts a transaction exactly once. When the node does
// not answer within the call timeout the transaction may or may not have been
// accepted, so the hash is returned together with
// entities.ErrTransactionStatusUnknown.
func (c *Client) Submit(ctx context.Context, req entities.TxRequest, signer entities.TxSigner) (common.Hash, error) {
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    req.Nonce,
		GasPrice: req.GasPrice,
		Gas:      req.GasLimit,
		To:       &req.To,
		Value:    value,
		Data:     req.Data,
	})

	signed, err := signer.SignTx(tx, req.ChainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: sign: %v", entities.ErrSubmitRejected, err)
	}
	hash := signed.Hash()

	if err := c.limiter.Wait(ctx); err != nil {
		return common.Hash{}, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	if err := c.backend.SendTransaction(sendCtx, signed); err != nil {
		if isTransient(err) || sendCtx.Err() != nil {
			c.logger.Warn("transaction submission outcome unknown",
				zap.String("tx_hash", hash.Hex()),
				zap.Uint64("nonce", req.Nonce),
				zap.Error(err),
			)
			return hash, fmt.Errorf("%w: %s: %v", entities.ErrTransactionStatusUnknown, hash.Hex(), err)
		}
		return common.Hash{}, fmt.Errorf("%w: %v", entities.ErrSubmitRejected, err)
	}

	c.logger.Info("transaction submitted",
		zap.String("tx_hash", hash.Hex()),
		zap.Uint64("nonce", req.Nonce),
		zap.Uint64("gas", req.GasLimit),
	)
	return hash, nil
}

// WaitForReceipt polls until the transaction is mined or ctx ends. Running
// out of time yields entities.ErrTransactionStatusUnknown.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*entities.Receipt, error) {
	start := time.Now()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.receipt(ctx, hash)
		if err == nil {
			c.metrics.ObserveConfirmation(time.Since(start).Seconds())
			return &entities.Receipt{
				TxHash:      hash,
				Status:      receipt.Status,
				GasUsed:     receipt.GasUsed,
				BlockNumber: receipt.BlockNumber.Uint64(),
			}, nil
		}
		if !errors.Is(err, ethereum.NotFound) && !isTransient(err) {
			return nil, fmt.Errorf("failed to get receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", entities.ErrTransactionStatusUnknown, hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()
	return c.backend.TransactionReceipt(callCtx, hash)
}

// Multicall performs independent contract calls concurrently. Results keep
// the order of calls; the first error cancels the remaining calls.
func (c *Client) Multicall(ctx context.Context, calls []ethereum.CallMsg) ([][]byte, error) {
	results := make([][]byte, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	// Limit concurrent calls to prevent overwhelming the RPC
	g.SetLimit(10)

	for i, call := range calls {
		g.Go(func() error {
			result, err := c.CallContract(gctx, call)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
