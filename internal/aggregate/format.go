package aggregate

import (
	"math/big"
	"sort"

	"github.com/shopspring/decimal"
)

// tokenDecimals is the base-unit scale of the wagered token.
const tokenDecimals = 18

// displayPlaces is the rounding applied to display amounts.
const displayPlaces = 2

// DisplayAmount renders a raw base-unit integer as a fixed-point decimal
// string. Scaling stays exact; only the final rounding loses precision.
func DisplayAmount(raw *big.Int) string {
	if raw == nil {
		return decimal.Zero.StringFixed(displayPlaces)
	}
	return decimal.NewFromBigInt(raw, -tokenDecimals).StringFixed(displayPlaces)
}

// Row is the display form of one folded address. Raw values ride along as
// decimal strings so callers can re-derive exact amounts.
type Row struct {
	Address       string   `json:"address"`
	Chains        []string `json:"chains"`
	GameCount     uint64   `json:"game_count"`
	Volume        string   `json:"volume"`
	VolumeRaw     string   `json:"volume_raw"`
	TopWin        string   `json:"top_win"`
	TopWinRaw     string   `json:"top_win_raw"`
	Profit        string   `json:"profit"`
	ProfitRaw     string   `json:"profit_raw"`
	ReferredCount int      `json:"referred_count"`
	Claimed       string   `json:"claimed"`
	ClaimedRaw    string   `json:"claimed_raw"`
}

// DisplayRow converts one fold into display form.
func DisplayRow(totals *PlayerTotals) Row {
	chains := make([]string, 0, len(totals.Chains))
	for key := range totals.Chains {
		chains = append(chains, key)
	}
	sort.Strings(chains)

	return Row{
		Address:       totals.Address,
		Chains:        chains,
		GameCount:     totals.GameCount,
		Volume:        DisplayAmount(totals.VolumeRaw),
		VolumeRaw:     totals.VolumeRaw.String(),
		TopWin:        DisplayAmount(totals.TopWinRaw),
		TopWinRaw:     totals.TopWinRaw.String(),
		Profit:        DisplayAmount(totals.ProfitRaw),
		ProfitRaw:     totals.ProfitRaw.String(),
		ReferredCount: len(totals.Referred),
		Claimed:       DisplayAmount(totals.ClaimedRaw),
		ClaimedRaw:    totals.ClaimedRaw.String(),
	}
}

// DisplayRows converts folds into display rows ordered by volume descending,
// breaking ties by profit and then address for a stable order.
func DisplayRows(totals []*PlayerTotals) []Row {
	sorted := make([]*PlayerTotals, len(totals))
	copy(sorted, totals)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := sorted[i].VolumeRaw.Cmp(sorted[j].VolumeRaw); c != 0 {
			return c > 0
		}
		if c := sorted[i].ProfitRaw.Cmp(sorted[j].ProfitRaw); c != 0 {
			return c > 0
		}
		return sorted[i].Address < sorted[j].Address
	})

	rows := make([]Row, 0, len(sorted))
	for _, totals := range sorted {
		rows = append(rows, DisplayRow(totals))
	}
	return rows
}
