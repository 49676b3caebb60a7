package chain

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Closest selects which side of a target timestamp a resolved block falls on.
type Closest string

const (
	ClosestBefore Closest = "before"
	ClosestAfter  Closest = "after"
)

// ParseClosest validates a caller-supplied closest preference.
func ParseClosest(s string) (Closest, error) {
	switch Closest(strings.ToLower(strings.TrimSpace(s))) {
	case ClosestBefore:
		return ClosestBefore, nil
	case ClosestAfter:
		return ClosestAfter, nil
	default:
		return "", fmt.Errorf("unknown closest preference %q", s)
	}
}

const (
	fastWindowRadius = 50_000
	fastProbeLimit   = 28
	fullProbeLimit   = 40
)

// blockReader is the minimal chain surface block-time resolution needs.
type blockReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// Resolver maps UTC timestamps to block numbers by binary search over block
// timestamps. With a known average block time it first estimates a starting
// point and searches only a bounded window around it; this accepts a small
// chance of missing blocks far outside the estimate in exchange for far
// fewer probes per call.
type Resolver struct {
	reader       blockReader
	avgBlockTime uint64
	logger       *zap.Logger
}

// NewResolver builds a resolver over the given chain surface. A zero
// avgBlockTime disables the estimating fast path.
func NewResolver(reader blockReader, avgBlockTime uint64, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{reader: reader, avgBlockTime: avgBlockTime, logger: logger}
}

// BlockByTime resolves the block closest to target on the requested side.
// Targets at or before epoch zero resolve to block zero; targets at or past
// the chain head resolve to the head.
func (r *Resolver) BlockByTime(ctx context.Context, target int64, closest Closest) (uint64, error) {
	latest, err := r.reader.LatestBlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("latest block: %w", err)
	}

	if target <= 0 {
		return 0, nil
	}
	targetTs := uint64(target)

	memo := make(map[uint64]uint64)
	probe := func(number uint64) (uint64, error) {
		if ts, ok := memo[number]; ok {
			return ts, nil
		}
		ts, err := r.reader.BlockTimestamp(ctx, number)
		if err != nil {
			return 0, fmt.Errorf("timestamp of block %d: %w", number, err)
		}
		memo[number] = ts
		return ts, nil
	}

	latestTs, err := probe(latest)
	if err != nil {
		return 0, err
	}
	if targetTs >= latestTs {
		return latest, nil
	}

	lo, hi := uint64(0), latest
	probeLimit := fullProbeLimit
	if r.avgBlockTime > 0 {
		estimate := estimateBlock(latest, latestTs, targetTs, r.avgBlockTime)
		if estimate > fastWindowRadius {
			lo = estimate - fastWindowRadius
		}
		hi = estimate + fastWindowRadius
		if hi > latest {
			hi = latest
		}
		probeLimit = fastProbeLimit
		r.logger.Debug("fast-path block estimate",
			zap.Uint64("estimate", estimate),
			zap.Uint64("window_lo", lo),
			zap.Uint64("window_hi", hi))
	}

	return searchWindow(lo, hi, targetTs, closest, probeLimit, probe)
}

// estimateBlock extrapolates backwards from the head using the average
// block time, clamped to the chain.
func estimateBlock(latest, latestTs, targetTs, avgBlockTime uint64) uint64 {
	if targetTs >= latestTs {
		return latest
	}
	behind := (latestTs - targetTs) / avgBlockTime
	if behind >= latest {
		return 0
	}
	return latest - behind
}

// searchWindow binary-searches [lo, hi] for the block nearest targetTs on
// the requested side. An exact timestamp hit stops immediately. When the
// probe budget runs out the best candidate seen so far is returned; if no
// candidate was on the right side, the window edge nearest the target is.
func searchWindow(
	lo, hi, targetTs uint64,
	closest Closest,
	probeLimit int,
	probe func(uint64) (uint64, error),
) (uint64, error) {
	windowLo, windowHi := lo, hi
	var best uint64
	hasBest := false

	for probes := 0; probes < probeLimit && lo <= hi; probes++ {
		mid := lo + (hi-lo)/2
		ts, err := probe(mid)
		if err != nil {
			return 0, err
		}

		switch {
		case ts == targetTs:
			return mid, nil
		case ts < targetTs:
			if closest == ClosestBefore {
				best = mid
				hasBest = true
			}
			lo = mid + 1
		default:
			if closest == ClosestAfter {
				best = mid
				hasBest = true
			}
			if mid == 0 {
				return windowLo, nil
			}
			hi = mid - 1
		}
	}

	if hasBest {
		return best, nil
	}
	if closest == ClosestBefore {
		return windowLo, nil
	}
	return windowHi, nil
}
