package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"leapScope/internal/chain"
	"leapScope/internal/game"
	"leapScope/internal/model"
)

type fetchCall struct {
	event  game.Kind
	filter string
	rng    model.BlockRange
}

type stubSource struct {
	key         string
	latest      uint64
	latestErr   error
	resolveFrom uint64
	resolveTo   uint64
	resolveErr  error
	logs        []model.EventLog
	perRange    map[model.BlockRange][]model.EventLog
	fetchErr    error
	blockTimes  map[uint64]uint64
	calls       []fetchCall
}

func (s *stubSource) Key() string        { return s.key }
func (s *stubSource) SourceName() string { return "rpc" }

func (s *stubSource) LatestBlock(ctx context.Context) (uint64, error) {
	return s.latest, s.latestErr
}

func (s *stubSource) BlockByTime(ctx context.Context, ts int64, closest chain.Closest) (uint64, error) {
	if s.resolveErr != nil {
		return 0, s.resolveErr
	}
	if closest == chain.ClosestAfter {
		return s.resolveFrom, nil
	}
	return s.resolveTo, nil
}

func (s *stubSource) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if ts, ok := s.blockTimes[number]; ok {
		return ts, nil
	}
	return 0, fmt.Errorf("no timestamp for block %d", number)
}

func (s *stubSource) FetchLogs(ctx context.Context, event game.Kind, filterAddress string, blockRange model.BlockRange) ([]model.EventLog, error) {
	s.calls = append(s.calls, fetchCall{event: event, filter: filterAddress, rng: blockRange})
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if s.perRange != nil {
		return s.perRange[blockRange], nil
	}
	return s.logs, nil
}

func newTestOrchestrator(t *testing.T, sources ...ChainSource) *Orchestrator {
	t.Helper()
	decoder, err := game.NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	orch, err := NewOrchestrator(sources, decoder, zap.NewNop())
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	return orch
}

func settledLog(t *testing.T, chainKey string, player common.Address, netWin int64, block, logIndex, ts uint64) model.EventLog {
	t.Helper()
	parsed, err := game.GameABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	data, err := parsed.Events["RoundSettled"].Inputs.NonIndexed().Pack(
		netWin > 0,
		uint8(3),
		big.NewInt(500),
		big.NewInt(netWin),
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	return model.EventLog{
		ChainKey:    chainKey,
		BlockNumber: block,
		Timestamp:   ts,
		TxHash:      fmt.Sprintf("0x%064x", block*1000+logIndex),
		LogIndex:    logIndex,
		Address:     "0x52a9be1e15e8c45e4fcbad3b29cd0ee3087c6f1d",
		Topics: []string{
			strings.ToLower(parsed.Events["RoundSettled"].ID.Hex()),
			strings.ToLower(common.BytesToHash(player.Bytes()).Hex()),
		},
		Data: hexutil.Encode(data),
	}
}

func boundLog(t *testing.T, chainKey string, player, referrer common.Address, block uint64) model.EventLog {
	t.Helper()
	parsed, err := game.GameABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	var code [32]byte
	copy(code[:], []byte("HOPHOP"))
	data, err := parsed.Events["ReferralBound"].Inputs.NonIndexed().Pack(code)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	return model.EventLog{
		ChainKey:    chainKey,
		BlockNumber: block,
		TxHash:      fmt.Sprintf("0x%064x", block),
		Address:     "0x3d4cc1e38a96c7e6e5cbbd0ca2f40817d92aa6b4",
		Topics: []string{
			strings.ToLower(parsed.Events["ReferralBound"].ID.Hex()),
			strings.ToLower(common.BytesToHash(player.Bytes()).Hex()),
			strings.ToLower(common.BytesToHash(referrer.Bytes()).Hex()),
		},
		Data: hexutil.Encode(data),
	}
}

func playerAddr(i int) common.Address {
	return common.HexToAddress(fmt.Sprintf("0x%040x", i+1))
}

func TestOrchestratorPartialFailure(t *testing.T) {
	healthy := &stubSource{key: "base", latest: 5000}
	for i := 0; i < 5; i++ {
		healthy.logs = append(healthy.logs, settledLog(t, "base", playerAddr(i), 100, uint64(1000+i), 0, uint64(1700000000+i)))
	}
	broken := &stubSource{key: "linea", latest: 9000, fetchErr: fmt.Errorf("rpc unreachable")}

	orch := newTestOrchestrator(t, healthy, broken)
	result, err := orch.Run(context.Background(), Request{Kind: KindLeaderboard, Timeframe: TimeframeAll})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !result.OK {
		t.Fatalf("partial failure should still report ok")
	}
	if len(result.Rows) != 5 {
		t.Fatalf("row count: %d", len(result.Rows))
	}
	if result.Meta.Chains["base"].Stage != StageDone {
		t.Fatalf("base stage: %s", result.Meta.Chains["base"].Stage)
	}
	if result.Meta.Chains["linea"].Stage != StageFailed {
		t.Fatalf("linea stage: %s", result.Meta.Chains["linea"].Stage)
	}
	if _, ok := result.Meta.Errors["linea"]; !ok {
		t.Fatalf("linea error missing: %v", result.Meta.Errors)
	}
	if _, ok := result.Meta.Errors["base"]; ok {
		t.Fatalf("base must not be in the error map")
	}
}

func TestOrchestratorAllChainsFail(t *testing.T) {
	first := &stubSource{key: "base", latestErr: fmt.Errorf("down")}
	second := &stubSource{key: "linea", latestErr: fmt.Errorf("also down")}

	orch := newTestOrchestrator(t, first, second)
	result, err := orch.Run(context.Background(), Request{Kind: KindLeaderboard, Timeframe: TimeframeAll})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.OK {
		t.Fatalf("all chains failed, ok must be false")
	}
	if len(result.Rows) != 0 {
		t.Fatalf("rows on total failure: %d", len(result.Rows))
	}
	if len(result.Meta.Errors) != 2 {
		t.Fatalf("error map: %v", result.Meta.Errors)
	}
}

func TestOrchestratorMergesAcrossChains(t *testing.T) {
	shared := playerAddr(7)
	base := &stubSource{key: "base", latest: 5000,
		logs: []model.EventLog{settledLog(t, "base", shared, 100, 100, 0, 1700000100)}}
	linea := &stubSource{key: "linea", latest: 7000,
		logs: []model.EventLog{settledLog(t, "linea", shared, -50, 200, 0, 1700000200)}}

	orch := newTestOrchestrator(t, base, linea)
	result, err := orch.Run(context.Background(), Request{Kind: KindLeaderboard, Timeframe: TimeframeAll})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(result.Rows) != 1 {
		t.Fatalf("expected one merged row, got %d", len(result.Rows))
	}
	row := result.Rows[0]
	if len(row.Chains) != 2 || row.Chains[0] != "base" || row.Chains[1] != "linea" {
		t.Fatalf("chain membership: %v", row.Chains)
	}
	if row.GameCount != 2 || row.VolumeRaw != "1000" || row.ProfitRaw != "50" {
		t.Fatalf("merged totals: %+v", row)
	}
}

func TestOrchestratorResolvesWindowRange(t *testing.T) {
	player := playerAddr(3)
	source := &stubSource{
		key:         "base",
		latest:      9000,
		resolveFrom: 4000,
		resolveTo:   8000,
		logs: []model.EventLog{
			settledLog(t, "base", player, 100, 4100, 0, 0),
			settledLog(t, "base", player, 20, 4200, 1, 0),
		},
		blockTimes: map[uint64]uint64{4100: 1700000100, 4200: 1700000200},
	}

	orch := newTestOrchestrator(t, source)
	result, err := orch.Run(context.Background(), Request{
		Kind:      KindProfileGames,
		Timeframe: TimeframeDaily,
		Address:   player.Hex(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(source.calls) != 1 {
		t.Fatalf("fetch calls: %d", len(source.calls))
	}
	call := source.calls[0]
	if call.event != game.KindRoundSettled {
		t.Fatalf("event kind: %s", call.event)
	}
	if call.filter != strings.ToLower(player.Hex()) {
		t.Fatalf("address filter: %s", call.filter)
	}
	if call.rng.From != 4000 || call.rng.To != 8000 {
		t.Fatalf("resolved range: %+v", call.rng)
	}

	if len(result.Recent) != 2 {
		t.Fatalf("recent games: %d", len(result.Recent))
	}
	if result.Recent[0].Timestamp != 1700000200 || result.Recent[1].Timestamp != 1700000100 {
		t.Fatalf("recent not newest first: %+v", result.Recent)
	}
	if result.Recent[0].Amount != "0.00" || result.Recent[0].AmountRaw != "500" {
		t.Fatalf("recent amounts: %+v", result.Recent[0])
	}
}

func TestOrchestratorReferralPlan(t *testing.T) {
	referrer := playerAddr(9)
	referred := playerAddr(10)
	source := &stubSource{
		key:         "base",
		latest:      9000,
		resolveFrom: 1000,
		resolveTo:   2000,
		logs:        []model.EventLog{boundLog(t, "base", referred, referrer, 1500)},
	}

	orch := newTestOrchestrator(t, source)
	result, err := orch.Run(context.Background(), Request{
		Kind:      KindProfileReferrals,
		Timeframe: TimeframeWeekly,
		Address:   referrer.Hex(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(source.calls) != 2 {
		t.Fatalf("fetch calls: %d", len(source.calls))
	}
	if source.calls[0].event != game.KindReferralBound || source.calls[1].event != game.KindReferralRewardClaimed {
		t.Fatalf("plan order: %s, %s", source.calls[0].event, source.calls[1].event)
	}
	for _, call := range source.calls {
		if call.filter != strings.ToLower(referrer.Hex()) {
			t.Fatalf("referrer filter missing: %+v", call)
		}
	}

	if len(result.Rows) != 1 {
		t.Fatalf("rows: %d", len(result.Rows))
	}
	if result.Rows[0].ReferredCount != 1 {
		t.Fatalf("referred count: %d", result.Rows[0].ReferredCount)
	}
}

func TestOrchestratorBackwardStopsAtTarget(t *testing.T) {
	player := playerAddr(5)
	first := model.BlockRange{From: 850001, To: 1000000}

	logs := make([]model.EventLog, 0, backwardTargetLogs)
	for i := 0; i < backwardTargetLogs; i++ {
		logs = append(logs, settledLog(t, "base", player, 100, uint64(900000+i), uint64(i), uint64(1700000000+i)))
	}
	source := &stubSource{
		key:      "base",
		latest:   1000000,
		perRange: map[model.BlockRange][]model.EventLog{first: logs},
	}

	orch := newTestOrchestrator(t, source)
	result, err := orch.Run(context.Background(), Request{
		Kind:      KindProfileGames,
		Timeframe: TimeframeAll,
		Address:   player.Hex(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(source.calls) != 1 {
		t.Fatalf("walk should stop after the first chunk: %d calls", len(source.calls))
	}
	if source.calls[0].rng != first {
		t.Fatalf("first chunk range: %+v", source.calls[0].rng)
	}

	status := result.Meta.Chains["base"]
	if !status.Truncated {
		t.Fatalf("capped walk must be marked truncated")
	}
	if status.FromBlock != 850001 || status.ToBlock != 1000000 {
		t.Fatalf("covered range: %+v", status)
	}
	if len(result.Recent) != backwardTargetLogs {
		t.Fatalf("recent games: %d", len(result.Recent))
	}
	if result.Rows[0].GameCount != uint64(backwardTargetLogs) {
		t.Fatalf("game count: %d", result.Rows[0].GameCount)
	}
}

func TestOrchestratorBackwardReachesGenesis(t *testing.T) {
	player := playerAddr(6)
	source := &stubSource{
		key:    "base",
		latest: 200000,
		perRange: map[model.BlockRange][]model.EventLog{
			{From: 50001, To: 200000}: {settledLog(t, "base", player, 100, 60000, 0, 1700000500)},
			{From: 0, To: 50000}:      {settledLog(t, "base", player, -20, 400, 0, 1600000000)},
		},
	}

	orch := newTestOrchestrator(t, source)
	result, err := orch.Run(context.Background(), Request{
		Kind:      KindProfileGames,
		Timeframe: TimeframeAll,
		Address:   player.Hex(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(source.calls) != 2 {
		t.Fatalf("fetch calls: %d", len(source.calls))
	}
	if source.calls[0].rng.From != 50001 || source.calls[1].rng.To != 50000 {
		t.Fatalf("walk order not newest first: %+v", source.calls)
	}

	status := result.Meta.Chains["base"]
	if status.Truncated {
		t.Fatalf("full walk must not be truncated")
	}
	if status.FromBlock != 0 {
		t.Fatalf("from block: %d", status.FromBlock)
	}
	if len(result.Recent) != 2 || result.Recent[0].Timestamp != 1700000500 {
		t.Fatalf("recent order: %+v", result.Recent)
	}
}

func TestOrchestratorCountsSkippedLogs(t *testing.T) {
	player := playerAddr(11)
	garbage := model.EventLog{
		ChainKey:    "base",
		BlockNumber: 123,
		TxHash:      "0xfeed",
		Address:     "0x52a9be1e15e8c45e4fcbad3b29cd0ee3087c6f1d",
		Topics:      []string{strings.ToLower(common.HexToHash("0x01").Hex())},
		Data:        "0x",
	}
	source := &stubSource{
		key:    "base",
		latest: 5000,
		logs: []model.EventLog{
			settledLog(t, "base", player, 100, 1000, 0, 1700000000),
			garbage,
		},
	}

	orch := newTestOrchestrator(t, source)
	result, err := orch.Run(context.Background(), Request{Kind: KindLeaderboard, Timeframe: TimeframeAll})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	status := result.Meta.Chains["base"]
	if status.Stage != StageDone {
		t.Fatalf("stage: %s", status.Stage)
	}
	if status.Logs != 2 || status.Skipped != 1 {
		t.Fatalf("counts: %+v", status)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("rows: %d", len(result.Rows))
	}
}

func TestOrchestratorRejectsBadRequests(t *testing.T) {
	source := &stubSource{key: "base", latest: 100}
	orch := newTestOrchestrator(t, source)

	if _, err := orch.Run(context.Background(), Request{Kind: KindProfileGames, Address: "nope"}); err == nil {
		t.Fatalf("expected malformed address error")
	}
	if _, err := orch.Run(context.Background(), Request{Kind: RequestKind("bogus")}); err == nil {
		t.Fatalf("expected unknown kind error")
	}
	if _, err := orch.Run(context.Background(), Request{Kind: KindLeaderboard, Timeframe: Timeframe("hourly")}); err == nil {
		t.Fatalf("expected unknown timeframe error")
	}
	if len(source.calls) != 0 {
		t.Fatalf("no fetches expected for rejected requests")
	}
}

func TestOrchestratorHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := &stubSource{key: "base", latestErr: ctx.Err()}
	orch := newTestOrchestrator(t, source)

	if _, err := orch.Run(ctx, Request{Kind: KindLeaderboard, Timeframe: TimeframeAll}); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestRequestValidateNormalizesAddress(t *testing.T) {
	req := Request{
		Kind:    KindProfileGames,
		Address: "0xABCDEF0123456789ABCDEF0123456789ABCDEF01",
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if req.Address != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Fatalf("address not normalized: %s", req.Address)
	}
	if req.Timeframe != TimeframeAll {
		t.Fatalf("empty timeframe should default to all: %s", req.Timeframe)
	}

	board := Request{Kind: KindLeaderboard, Address: "0xABCDEF0123456789ABCDEF0123456789ABCDEF01"}
	if err := board.Validate(); err != nil {
		t.Fatalf("validate leaderboard: %v", err)
	}
	if board.Address != "" {
		t.Fatalf("leaderboard must ignore the address")
	}
}
