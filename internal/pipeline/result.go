package pipeline

import (
	"sort"

	"leapScope/internal/aggregate"
)

// Stage names how far a chain progressed through one run.
type Stage string

const (
	StageResolvingRange Stage = "resolving_range"
	StageFetchingLogs   Stage = "fetching_logs"
	StageDecoding       Stage = "decoding"
	StageDone           Stage = "done"
	StageFailed         Stage = "failed"
)

// ChainStatus reports one chain's progress and what it produced.
type ChainStatus struct {
	Stage     Stage  `json:"stage"`
	Source    string `json:"source"`
	FromBlock uint64 `json:"from_block"`
	ToBlock   uint64 `json:"to_block"`
	Logs      int    `json:"logs"`
	Skipped   int    `json:"skipped"`
	Truncated bool   `json:"truncated,omitempty"`
}

// RecentGame is one decoded round kept for profile responses.
type RecentGame struct {
	ChainKey    string `json:"chain_key"`
	BlockNumber uint64 `json:"block_number"`
	Timestamp   uint64 `json:"timestamp,omitempty"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Won         bool   `json:"won"`
	CashoutStep uint8  `json:"cashout_step"`
	Amount      string `json:"amount"`
	AmountRaw   string `json:"amount_raw"`
	NetWin      string `json:"net_win"`
	NetWinRaw   string `json:"net_win_raw"`
}

// Meta describes a completed run: the window it covered, per-chain status
// and the per-chain error map for degraded chains.
type Meta struct {
	Timeframe Timeframe              `json:"timeframe"`
	Window    TimeWindow             `json:"window"`
	Chains    map[string]ChainStatus `json:"chains"`
	Errors    map[string]string      `json:"errors,omitempty"`
}

// Result is the outcome of one orchestrator run. OK is true when at least
// one chain completed; rows from completed chains are returned even when
// other chains failed.
type Result struct {
	OK     bool            `json:"ok"`
	Rows   []aggregate.Row `json:"rows"`
	Recent []RecentGame    `json:"recent,omitempty"`
	Meta   Meta            `json:"meta"`
}

// sortRecent orders games newest first. Timestamps compare across chains;
// block number and log index break ties within one chain.
func sortRecent(games []RecentGame) {
	sort.SliceStable(games, func(i, j int) bool {
		if games[i].Timestamp != games[j].Timestamp {
			return games[i].Timestamp > games[j].Timestamp
		}
		if games[i].BlockNumber != games[j].BlockNumber {
			return games[i].BlockNumber > games[j].BlockNumber
		}
		return games[i].LogIndex > games[j].LogIndex
	})
}
