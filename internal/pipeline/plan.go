package pipeline

import (
	"fmt"

	"leapScope/internal/game"
	"leapScope/internal/model"
)

// RequestKind names one of the aggregation surfaces served by the pipeline.
type RequestKind string

const (
	KindLeaderboard      RequestKind = "leaderboard"
	KindProfileGames     RequestKind = "profile_games"
	KindProfileReferrals RequestKind = "profile_referrals"
)

// Request describes one pipeline run.
type Request struct {
	Kind      RequestKind
	Timeframe Timeframe
	Address   string
}

// Validate normalizes the request in place. Profile requests require a
// well-formed wallet address; the leaderboard ignores it.
func (r *Request) Validate() error {
	switch r.Kind {
	case KindLeaderboard:
		r.Address = ""
	case KindProfileGames, KindProfileReferrals:
		addr, ok := model.CoerceAddress(r.Address)
		if !ok {
			return fmt.Errorf("request %s: malformed address %q", r.Kind, r.Address)
		}
		r.Address = addr
	default:
		return fmt.Errorf("unknown request kind %q", r.Kind)
	}

	if r.Timeframe == "" {
		r.Timeframe = TimeframeAll
	}
	if _, err := ParseTimeframe(string(r.Timeframe)); err != nil {
		return err
	}
	return nil
}

// fetchStep is one log fetch within a run: an event kind and whether the
// request's address is applied as a positional topic filter.
type fetchStep struct {
	Event         game.Kind
	FilterAddress bool
}

// plan maps a request kind to its fetch steps. collectRecent keeps decoded
// rounds for the profile recent-games list.
type plan struct {
	steps         []fetchStep
	collectRecent bool
}

var plans = map[RequestKind]plan{
	KindLeaderboard: {
		steps: []fetchStep{
			{Event: game.KindRoundSettled},
		},
	},
	KindProfileGames: {
		steps: []fetchStep{
			{Event: game.KindRoundSettled, FilterAddress: true},
		},
		collectRecent: true,
	},
	KindProfileReferrals: {
		steps: []fetchStep{
			{Event: game.KindReferralBound, FilterAddress: true},
			{Event: game.KindReferralRewardClaimed, FilterAddress: true},
		},
	},
}

func planFor(kind RequestKind) (plan, error) {
	p, ok := plans[kind]
	if !ok {
		return plan{}, fmt.Errorf("no plan for request kind %q", kind)
	}
	return p, nil
}
