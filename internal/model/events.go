package model

// RoundSettledData is the decoded RoundSettled event payload. Amount fields
// are raw base-unit integers in decimal string form; PlayerNetWin may be
// negative.
type RoundSettledData struct {
	Player         string `json:"player"`
	Won            bool   `json:"won"`
	CashoutStep    uint8  `json:"cashout_step"`
	AmountReceived string `json:"amount_received"`
	PlayerNetWin   string `json:"player_net_win"`
}

// ReferralBoundData is the decoded ReferralBound event payload.
type ReferralBoundData struct {
	Player   string `json:"player"`
	Referrer string `json:"referrer"`
	Code     string `json:"code"`
}

// ReferralRewardClaimedData is the decoded ReferralRewardClaimed event payload.
type ReferralRewardClaimedData struct {
	Epoch    string `json:"epoch"`
	Referrer string `json:"referrer"`
	Amount   string `json:"amount"`
}

// DecodedEvent is a decoded game event enriched with its log position.
type DecodedEvent struct {
	ChainKey    string      `json:"chain_key"`
	BlockNumber uint64      `json:"block_number"`
	Timestamp   uint64      `json:"timestamp,omitempty"`
	TxHash      string      `json:"tx_hash"`
	LogIndex    uint64      `json:"log_index"`
	Address     string      `json:"address"`
	EventName   string      `json:"event_name"`
	Decoded     interface{} `json:"decoded"`
}
