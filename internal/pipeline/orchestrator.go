package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"leapScope/internal/aggregate"
	"leapScope/internal/chain"
	"leapScope/internal/game"
	"leapScope/internal/httpretry"
	"leapScope/internal/model"
)

const (
	// Inter-call spacing within one chain, to stay polite with upstreams.
	stepDelayMin = 150 * time.Millisecond
	stepDelayMax = 400 * time.Millisecond

	// All-time profile history walks backward from the tip in fixed chunks
	// and stops once enough rounds are collected. A capped, best-effort
	// approximation rather than a full-history guarantee.
	backwardChunkBlocks = 150_000
	backwardMaxRounds   = 8
	backwardTargetLogs  = 200

	recentGamesLimit = 200
)

// Orchestrator drives the fetch-decode-fold pipeline. Chains are processed
// sequentially and one chain's failure never aborts the rest; the run
// succeeds when at least one chain completes.
type Orchestrator struct {
	sources []ChainSource
	decoder *game.Decoder
	logger  *zap.Logger
	now     func() time.Time
}

func NewOrchestrator(sources []ChainSource, decoder *game.Decoder, logger *zap.Logger) (*Orchestrator, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one chain source is required")
	}
	if decoder == nil {
		return nil, fmt.Errorf("decoder is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		sources: sources,
		decoder: decoder,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Run executes one aggregation request across all configured chains.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	pl, err := planFor(req.Kind)
	if err != nil {
		return nil, err
	}
	window, err := WindowFor(req.Timeframe, o.now())
	if err != nil {
		return nil, err
	}

	acc := aggregate.NewAccumulator()
	recent := make([]RecentGame, 0)
	statuses := make(map[string]ChainStatus, len(o.sources))
	chainErrors := make(map[string]string)

	for _, source := range o.sources {
		started := time.Now()
		status, runErr := o.runChain(ctx, source, req, pl, window, acc, &recent)
		statuses[source.Key()] = status
		if runErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			chainErrors[source.Key()] = runErr.Error()
			o.logger.Warn("chain aggregation failed",
				zap.String("chain", source.Key()),
				zap.String("stage", string(status.Stage)),
				zap.Duration("elapsed", time.Since(started)),
				zap.Error(runErr))
			continue
		}
		o.logger.Info("chain aggregation complete",
			zap.String("chain", source.Key()),
			zap.Int("logs", status.Logs),
			zap.Int("skipped", status.Skipped),
			zap.Duration("elapsed", time.Since(started)))
	}

	ok := false
	for _, status := range statuses {
		if status.Stage == StageDone {
			ok = true
			break
		}
	}

	sortRecent(recent)
	if len(recent) > recentGamesLimit {
		recent = recent[:recentGamesLimit]
	}

	result := &Result{
		OK:     ok,
		Rows:   aggregate.DisplayRows(acc.Rows()),
		Recent: recent,
		Meta: Meta{
			Timeframe: req.Timeframe,
			Window:    window,
			Chains:    statuses,
		},
	}
	if len(chainErrors) > 0 {
		result.Meta.Errors = chainErrors
	}
	return result, nil
}

func (o *Orchestrator) runChain(
	ctx context.Context,
	source ChainSource,
	req Request,
	pl plan,
	window TimeWindow,
	acc *aggregate.Accumulator,
	recent *[]RecentGame,
) (ChainStatus, error) {
	// All-time profile history has no window to resolve; it walks backward
	// from the tip instead.
	if pl.collectRecent && req.Timeframe == TimeframeAll {
		return o.runChainBackward(ctx, source, req, pl, acc, recent)
	}

	status := ChainStatus{Stage: StageResolvingRange, Source: source.SourceName()}

	blockRange, err := o.resolveRange(ctx, source, req.Timeframe, window)
	if err != nil {
		status.Stage = StageFailed
		return status, fmt.Errorf("resolve range: %w", err)
	}
	status.FromBlock = blockRange.From
	status.ToBlock = blockRange.To

	status.Stage = StageFetchingLogs
	logs := make([]model.EventLog, 0)
	for i, step := range pl.steps {
		if i > 0 {
			if err := httpretry.JitterSleep(ctx, stepDelayMin, stepDelayMax); err != nil {
				status.Stage = StageFailed
				return status, err
			}
		}
		filter := ""
		if step.FilterAddress {
			filter = req.Address
		}
		stepLogs, err := source.FetchLogs(ctx, step.Event, filter, blockRange)
		if err != nil {
			status.Stage = StageFailed
			return status, fmt.Errorf("fetch %s logs: %w", step.Event, err)
		}
		logs = append(logs, stepLogs...)
	}
	status.Logs = len(logs)

	status.Stage = StageDecoding
	if err := o.decodeAndFold(ctx, source, pl, logs, acc, recent, &status); err != nil {
		status.Stage = StageFailed
		return status, err
	}

	status.Stage = StageDone
	return status, nil
}

// runChainBackward serves all-time profile history: fixed-size chunks from
// the tip toward genesis, stopping once enough rounds are collected or the
// round budget runs out. Truncated marks a walk that stopped above block 0.
func (o *Orchestrator) runChainBackward(
	ctx context.Context,
	source ChainSource,
	req Request,
	pl plan,
	acc *aggregate.Accumulator,
	recent *[]RecentGame,
) (ChainStatus, error) {
	status := ChainStatus{Stage: StageResolvingRange, Source: source.SourceName()}

	latest, err := source.LatestBlock(ctx)
	if err != nil {
		status.Stage = StageFailed
		return status, fmt.Errorf("latest block: %w", err)
	}
	ranges, err := model.BackwardRanges(latest, backwardChunkBlocks, backwardMaxRounds)
	if err != nil {
		status.Stage = StageFailed
		return status, err
	}
	status.FromBlock = latest
	status.ToBlock = latest

	step := pl.steps[0]
	status.Stage = StageFetchingLogs
	logs := make([]model.EventLog, 0)
	for i, chunk := range ranges {
		if i > 0 {
			if err := httpretry.JitterSleep(ctx, stepDelayMin, stepDelayMax); err != nil {
				status.Stage = StageFailed
				return status, err
			}
		}
		chunkLogs, err := source.FetchLogs(ctx, step.Event, req.Address, chunk)
		if err != nil {
			status.Stage = StageFailed
			return status, fmt.Errorf("fetch %s logs [%d, %d]: %w", step.Event, chunk.From, chunk.To, err)
		}
		logs = append(logs, chunkLogs...)
		status.FromBlock = chunk.From
		if len(logs) >= backwardTargetLogs {
			break
		}
	}
	status.Logs = len(logs)
	status.Truncated = status.FromBlock > 0

	status.Stage = StageDecoding
	if err := o.decodeAndFold(ctx, source, pl, logs, acc, recent, &status); err != nil {
		status.Stage = StageFailed
		return status, err
	}

	status.Stage = StageDone
	return status, nil
}

// resolveRange maps the request window onto a block range. The all
// timeframe skips timestamp resolution entirely.
func (o *Orchestrator) resolveRange(ctx context.Context, source ChainSource, tf Timeframe, window TimeWindow) (model.BlockRange, error) {
	latest, err := source.LatestBlock(ctx)
	if err != nil {
		return model.BlockRange{}, fmt.Errorf("latest block: %w", err)
	}
	if tf == TimeframeAll {
		return model.BlockRange{From: 0, To: latest}, nil
	}

	from, err := source.BlockByTime(ctx, window.Start, chain.ClosestAfter)
	if err != nil {
		return model.BlockRange{}, fmt.Errorf("resolve window start: %w", err)
	}
	to, err := source.BlockByTime(ctx, window.End, chain.ClosestBefore)
	if err != nil {
		return model.BlockRange{}, fmt.Errorf("resolve window end: %w", err)
	}
	if to > latest {
		to = latest
	}
	return (model.BlockRange{From: from, To: to}).Normalize(), nil
}

// decodeAndFold decodes fetched logs into the shared accumulator. Logs that
// fail to decode are counted and skipped; a field coercion failure aborts
// the chain since it signals an ABI mismatch.
func (o *Orchestrator) decodeAndFold(
	ctx context.Context,
	source ChainSource,
	pl plan,
	logs []model.EventLog,
	acc *aggregate.Accumulator,
	recent *[]RecentGame,
	status *ChainStatus,
) error {
	skipped := 0
	for _, log := range logs {
		decoded, err := o.decoder.Decode(log)
		if err != nil {
			var fieldErr *model.FieldError
			if errors.As(err, &fieldErr) {
				return err
			}
			skipped++
			o.logger.Debug("skipping undecodable log",
				zap.String("chain", log.ChainKey),
				zap.String("tx", log.TxHash),
				zap.Uint64("log_index", log.LogIndex),
				zap.Error(err))
			continue
		}

		if err := acc.Apply(decoded); err != nil {
			return fmt.Errorf("fold %s: %w", decoded.EventName, err)
		}

		if pl.collectRecent {
			row, ok := recentFromEvent(decoded)
			if !ok {
				continue
			}
			if row.Timestamp == 0 {
				if ts, err := source.BlockTimestamp(ctx, decoded.BlockNumber); err == nil {
					row.Timestamp = ts
				}
			}
			*recent = append(*recent, row)
		}
	}
	status.Skipped = skipped
	return nil
}

func recentFromEvent(event *model.DecodedEvent) (RecentGame, bool) {
	data, ok := event.Decoded.(model.RoundSettledData)
	if !ok {
		return RecentGame{}, false
	}
	amount, err := model.CoerceBigInt(data.AmountReceived)
	if err != nil {
		return RecentGame{}, false
	}
	netWin, err := model.CoerceBigInt(data.PlayerNetWin)
	if err != nil {
		return RecentGame{}, false
	}

	return RecentGame{
		ChainKey:    event.ChainKey,
		BlockNumber: event.BlockNumber,
		Timestamp:   event.Timestamp,
		TxHash:      event.TxHash,
		LogIndex:    event.LogIndex,
		Won:         data.Won,
		CashoutStep: data.CashoutStep,
		Amount:      aggregate.DisplayAmount(amount),
		AmountRaw:   data.AmountReceived,
		NetWin:      aggregate.DisplayAmount(netWin),
		NetWinRaw:   data.PlayerNetWin,
	}, true
}
