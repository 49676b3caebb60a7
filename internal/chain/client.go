package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"leapScope/internal/httpretry"
	"leapScope/internal/model"
)

const tsCacheSize = 4096

// endpoint is one dialed RPC URL with its politeness limiter.
type endpoint struct {
	url     string
	rpc     *rpc.Client
	eth     *ethclient.Client
	limiter *rate.Limiter
}

// Client talks to one chain through an ordered list of RPC endpoints.
// Every operation sweeps the endpoints in order inside each backoff attempt:
// the first endpoint that succeeds wins and the last error surfaces only
// when all of them fail.
type Client struct {
	cfg       Config
	endpoints []*endpoint
	policy    httpretry.Policy
	logger    *zap.Logger

	tsCache *lru.Cache[uint64, uint64]

	splitMaxDepth int
	splitDelayMin time.Duration
	splitDelayMax time.Duration
}

// NewClient dials every configured endpoint for the chain.
func NewClient(ctx context.Context, cfg Config, policy httpretry.Policy, logger *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("chain", cfg.Key))

	limit := cfg.RateLimitPerSec
	if limit <= 0 {
		limit = 5
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = int(limit)
	}

	endpoints := make([]*endpoint, 0, len(cfg.RPCEndpoints))
	for _, url := range cfg.RPCEndpoints {
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			logger.Warn("skipping endpoint that failed to dial", zap.String("endpoint", url), zap.Error(err))
			continue
		}
		endpoints = append(endpoints, &endpoint{
			url:     url,
			rpc:     rpcClient,
			eth:     ethclient.NewClient(rpcClient),
			limiter: rate.NewLimiter(rate.Limit(limit), burst),
		})
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("chain %s: no usable rpc endpoints", cfg.Key)
	}

	tsCache, err := lru.New[uint64, uint64](tsCacheSize)
	if err != nil {
		return nil, fmt.Errorf("chain %s: timestamp cache: %w", cfg.Key, err)
	}

	return &Client{
		cfg:           cfg,
		endpoints:     endpoints,
		policy:        policy,
		logger:        logger,
		tsCache:       tsCache,
		splitMaxDepth: defaultSplitMaxDepth,
		splitDelayMin: defaultSplitDelayMin,
		splitDelayMax: defaultSplitDelayMax,
	}, nil
}

// Close releases every endpoint connection.
func (c *Client) Close() {
	for _, ep := range c.endpoints {
		ep.rpc.Close()
	}
}

// Key returns the chain key the client serves.
func (c *Client) Key() string {
	return c.cfg.Key
}

// ChainConfig returns the chain's static configuration.
func (c *Client) ChainConfig() Config {
	return c.cfg
}

// withFailover runs op against each endpoint in order, wrapped in the shared
// backoff policy. The rate limiter for an endpoint is awaited before it is
// called.
func (c *Client) withFailover(ctx context.Context, op string, fn func(ctx context.Context, ep *endpoint) error) error {
	return httpretry.Do(ctx, c.logger, c.policy, retryableRPCError, func(ctx context.Context) error {
		var lastErr error
		for _, ep := range c.endpoints {
			if err := ep.limiter.Wait(ctx); err != nil {
				return err
			}
			err := fn(ctx, ep)
			if err == nil {
				return nil
			}
			lastErr = err
			c.logger.Debug("endpoint call failed",
				zap.String("op", op),
				zap.String("endpoint", ep.url),
				zap.Error(err))
		}
		return lastErr
	})
}

// LatestBlockNumber returns the chain head number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := c.withFailover(ctx, "eth_blockNumber", func(ctx context.Context, ep *endpoint) error {
		n, err := ep.eth.BlockNumber(ctx)
		if err != nil {
			return err
		}
		number = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("chain %s: latest block: %w", c.cfg.Key, err)
	}
	return number, nil
}

// BlockTimestamp returns the timestamp of a block, memoized across calls.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if ts, ok := c.tsCache.Get(number); ok {
		return ts, nil
	}

	var header *types.Header
	err := c.withFailover(ctx, "eth_getBlockByNumber", func(ctx context.Context, ep *endpoint) error {
		h, err := ep.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		if err != nil {
			return err
		}
		header = h
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("chain %s: header %d: %w", c.cfg.Key, number, err)
	}

	c.tsCache.Add(number, header.Time)
	return header.Time, nil
}

// LogQuery describes one eth_getLogs call: a contract address, positional
// topic filters (nil slot means any) and an inclusive block range.
type LogQuery struct {
	Range   model.BlockRange
	Address common.Address
	Topics  [][]common.Hash
}

func (q LogQuery) withRange(r model.BlockRange) LogQuery {
	q.Range = r
	return q
}

// FilterLogs performs a single eth_getLogs call and normalizes the result.
func (c *Client) FilterLogs(ctx context.Context, q LogQuery) ([]model.EventLog, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(q.Range.From),
		ToBlock:   new(big.Int).SetUint64(q.Range.To),
		Addresses: []common.Address{q.Address},
		Topics:    q.Topics,
	}

	var raw []types.Log
	err := c.withFailover(ctx, "eth_getLogs", func(ctx context.Context, ep *endpoint) error {
		logs, err := ep.eth.FilterLogs(ctx, query)
		if err != nil {
			return err
		}
		raw = logs
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.EventLog, 0, len(raw))
	for _, l := range raw {
		out = append(out, eventLogFromRPC(c.cfg.Key, l))
	}
	return out, nil
}

// eventLogFromRPC converts a go-ethereum log into the normalized form.
func eventLogFromRPC(chainKey string, l types.Log) model.EventLog {
	topics := make([]string, 0, len(l.Topics))
	for _, t := range l.Topics {
		topics = append(topics, strings.ToLower(t.Hex()))
	}
	return model.EventLog{
		ChainKey:    chainKey,
		BlockNumber: l.BlockNumber,
		TxHash:      strings.ToLower(l.TxHash.Hex()),
		LogIndex:    uint64(l.Index),
		Address:     strings.ToLower(l.Address.Hex()),
		Topics:      topics,
		Data:        "0x" + common.Bytes2Hex(l.Data),
	}
}

// retryableRPCError keeps the backoff loop away from errors that bisection
// or the caller must handle instead.
func retryableRPCError(err error) bool {
	if err == nil {
		return false
	}
	if IsTooManyResults(err) {
		return false
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}

	// A structured JSON-RPC error means the node understood and refused the
	// call; retrying the same request will not change its mind.
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}

	return httpretry.IsRetryable(err)
}
