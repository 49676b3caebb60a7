package chain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"leapScope/internal/httpretry"
	"leapScope/internal/model"
)

const (
	defaultSplitMaxDepth = 16
	defaultSplitDelayMin = 150 * time.Millisecond
	defaultSplitDelayMax = 400 * time.Millisecond
)

// tooManyResultsPhrases is the best-effort heuristic for providers refusing
// an oversized eth_getLogs call. There is no structured code for this
// condition and providers phrase it differently; unmatched refusals are
// logged so new phrasings can be added.
var tooManyResultsPhrases = []string{
	"query returned more than",
	"too many results",
	"response size exceeded",
	"result set too large",
}

// IsTooManyResults reports whether an eth_getLogs error is the upstream
// refusing because the requested range matched too much data.
func IsTooManyResults(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range tooManyResultsPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

type splitOptions struct {
	maxDepth int
	delayMin time.Duration
	delayMax time.Duration
}

// LogsInRange fetches all logs matching the query, transparently bisecting
// the block range when the upstream refuses due to result size.
func (c *Client) LogsInRange(ctx context.Context, q LogQuery) ([]model.EventLog, error) {
	opts := splitOptions{
		maxDepth: c.splitMaxDepth,
		delayMin: c.splitDelayMin,
		delayMax: c.splitDelayMax,
	}
	return fetchLogsSplit(ctx, c.logger, q.Range.Normalize(), 0, opts, func(ctx context.Context, r model.BlockRange) ([]model.EventLog, error) {
		return c.FilterLogs(ctx, q.withRange(r))
	})
}

// fetchLogsSplit recursively halves the range on too-many-results refusals,
// fetching the halves sequentially with a jittered pause between them.
func fetchLogsSplit(
	ctx context.Context,
	logger *zap.Logger,
	r model.BlockRange,
	depth int,
	opts splitOptions,
	fetch func(context.Context, model.BlockRange) ([]model.EventLog, error),
) ([]model.EventLog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logs, err := fetch(ctx, r)
	if err == nil {
		return logs, nil
	}
	if !IsTooManyResults(err) {
		logger.Debug("getLogs error did not match any oversized-result phrase",
			zap.Uint64("from", r.From),
			zap.Uint64("to", r.To),
			zap.Error(err))
		return nil, err
	}

	if depth >= opts.maxDepth {
		return nil, fmt.Errorf("range [%d, %d] still oversized after %d bisections: %w", r.From, r.To, depth, err)
	}
	left, right, splitErr := r.Halves()
	if splitErr != nil {
		return nil, fmt.Errorf("range [%d, %d] oversized but unsplittable: %w", r.From, r.To, err)
	}

	logger.Debug("bisecting oversized log range",
		zap.Uint64("from", r.From),
		zap.Uint64("to", r.To),
		zap.Int("depth", depth))

	leftLogs, err := fetchLogsSplit(ctx, logger, left, depth+1, opts, fetch)
	if err != nil {
		return nil, err
	}
	if err := httpretry.JitterSleep(ctx, opts.delayMin, opts.delayMax); err != nil {
		return nil, err
	}
	rightLogs, err := fetchLogsSplit(ctx, logger, right, depth+1, opts, fetch)
	if err != nil {
		return nil, err
	}

	return append(leftLogs, rightLogs...), nil
}
