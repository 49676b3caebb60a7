package model

import (
	"encoding/json"
)

// EventLog is the normalized representation of a raw chain log, regardless
// of whether it was fetched through an explorer API or raw RPC.
type EventLog struct {
	ChainKey    string   `json:"chain_key"`
	BlockNumber uint64   `json:"block_number"`
	Timestamp   uint64   `json:"timestamp,omitempty"`
	TxHash      string   `json:"tx_hash"`
	LogIndex    uint64   `json:"log_index"`
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
}

// MarshalJSON ensures EventLog is encoded with stable field names.
func (l EventLog) MarshalJSON() ([]byte, error) {
	type Alias EventLog
	return json.Marshal(Alias(l))
}

// UnmarshalJSON decodes an EventLog from JSON.
func (l *EventLog) UnmarshalJSON(data []byte) error {
	type Alias EventLog
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*l = EventLog(a)
	return nil
}
