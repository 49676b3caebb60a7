package aggregate

import (
	"fmt"
	"math/big"

	"leapScope/internal/model"
)

// PlayerTotals is the running fold for one wallet address. Amounts stay
// raw base-unit integers until display conversion.
type PlayerTotals struct {
	Address    string
	Chains     map[string]struct{}
	GameCount  uint64
	VolumeRaw  *big.Int
	TopWinRaw  *big.Int
	ProfitRaw  *big.Int
	ClaimedRaw *big.Int
	Referred   map[string]struct{}
}

// Accumulator folds decoded events into per-address rows. One accumulator
// is shared across chains within a single run, so a wallet active on two
// chains merges into one row with multi-chain membership.
type Accumulator struct {
	rows map[string]*PlayerTotals
}

func NewAccumulator() *Accumulator {
	return &Accumulator{rows: make(map[string]*PlayerTotals)}
}

// row returns the fold for an address, lazily creating a zero-valued one.
func (a *Accumulator) row(address string) *PlayerTotals {
	row, ok := a.rows[address]
	if !ok {
		row = &PlayerTotals{
			Address:    address,
			Chains:     make(map[string]struct{}),
			VolumeRaw:  big.NewInt(0),
			TopWinRaw:  big.NewInt(0),
			ProfitRaw:  big.NewInt(0),
			ClaimedRaw: big.NewInt(0),
			Referred:   make(map[string]struct{}),
		}
		a.rows[address] = row
	}
	return row
}

// Apply folds one decoded event. Round settlements fold under the player,
// referral events under the referrer.
func (a *Accumulator) Apply(event *model.DecodedEvent) error {
	if event == nil {
		return fmt.Errorf("nil event")
	}
	switch data := event.Decoded.(type) {
	case model.RoundSettledData:
		return a.applyRoundSettled(event.ChainKey, data)
	case model.ReferralBoundData:
		return a.applyReferralBound(event.ChainKey, data)
	case model.ReferralRewardClaimedData:
		return a.applyRewardClaimed(event.ChainKey, data)
	default:
		return fmt.Errorf("unsupported decoded payload %T", event.Decoded)
	}
}

func (a *Accumulator) applyRoundSettled(chainKey string, data model.RoundSettledData) error {
	received, err := model.CoerceBigInt(data.AmountReceived)
	if err != nil {
		return fmt.Errorf("amountReceived: %w", err)
	}
	netWin, err := model.CoerceBigInt(data.PlayerNetWin)
	if err != nil {
		return fmt.Errorf("playerNetWin: %w", err)
	}

	row := a.row(data.Player)
	row.Chains[chainKey] = struct{}{}
	row.GameCount++
	row.VolumeRaw.Add(row.VolumeRaw, received)
	row.ProfitRaw.Add(row.ProfitRaw, netWin)
	if netWin.Cmp(row.TopWinRaw) > 0 {
		row.TopWinRaw.Set(netWin)
	}
	return nil
}

func (a *Accumulator) applyReferralBound(chainKey string, data model.ReferralBoundData) error {
	row := a.row(data.Referrer)
	row.Chains[chainKey] = struct{}{}
	row.Referred[data.Player] = struct{}{}
	return nil
}

func (a *Accumulator) applyRewardClaimed(chainKey string, data model.ReferralRewardClaimedData) error {
	amount, err := model.CoerceBigInt(data.Amount)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}

	row := a.row(data.Referrer)
	row.Chains[chainKey] = struct{}{}
	row.ClaimedRaw.Add(row.ClaimedRaw, amount)
	return nil
}

// Rows returns folded rows for addresses seen on at least one chain.
func (a *Accumulator) Rows() []*PlayerTotals {
	out := make([]*PlayerTotals, 0, len(a.rows))
	for _, row := range a.rows {
		if len(row.Chains) == 0 {
			continue
		}
		out = append(out, row)
	}
	return out
}

// Row returns the fold for a single address.
func (a *Accumulator) Row(address string) (*PlayerTotals, bool) {
	row, ok := a.rows[address]
	return row, ok
}

func (a *Accumulator) Len() int {
	return len(a.rows)
}
