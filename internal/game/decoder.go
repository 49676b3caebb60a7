package game

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"leapScope/internal/model"
)

// Decoder turns raw game and registry logs into typed events. Unknown
// topic0 values and malformed topic layouts are reported as errors so the
// caller can decide whether to skip or abort.
type Decoder struct {
	gameABI     abi.ABI
	topicToName map[string]string
}

// NewDecoder parses the embedded event ABI and indexes signature hashes.
func NewDecoder() (*Decoder, error) {
	parsed, err := GameABI()
	if err != nil {
		return nil, fmt.Errorf("parse game abi: %w", err)
	}
	topicToName := make(map[string]string, len(parsed.Events))
	for name, event := range parsed.Events {
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}
	return &Decoder{gameABI: parsed, topicToName: topicToName}, nil
}

// CanDecode reports whether topic0 matches a known event signature.
func (d *Decoder) CanDecode(topic0 string) bool {
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a raw log into a typed event keyed by its topic0.
func (d *Decoder) Decode(log model.EventLog) (*model.DecodedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log %s/%d has no topics", log.TxHash, log.LogIndex)
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unknown topic0 %s", log.Topics[0])
	}
	event := d.gameABI.Events[name]

	var (
		decoded interface{}
		err     error
	)
	switch name {
	case string(KindRoundSettled):
		decoded, err = d.decodeRoundSettled(log, event)
	case string(KindReferralBound):
		decoded, err = d.decodeReferralBound(log, event)
	case string(KindReferralRewardClaimed):
		decoded, err = d.decodeReferralRewardClaimed(log, event)
	default:
		return nil, fmt.Errorf("no decoder for event %s", name)
	}
	if err != nil {
		return nil, err
	}

	return &model.DecodedEvent{
		ChainKey:    log.ChainKey,
		BlockNumber: log.BlockNumber,
		Timestamp:   log.Timestamp,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Decoded:     decoded,
	}, nil
}

func (d *Decoder) decodeRoundSettled(log model.EventLog, event abi.Event) (interface{}, error) {
	topics, indexed, err := checkTopics(log, event)
	if err != nil {
		return nil, err
	}

	var args struct {
		Player common.Address
	}
	if err := abi.ParseTopics(&args, indexed, topics[1:]); err != nil {
		return nil, fmt.Errorf("parse %s topics: %w", event.Name, err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("%s expects 4 data fields, got %d", event.Name, len(values))
	}

	won, ok := values[0].(bool)
	if !ok {
		return nil, fmt.Errorf("%s won: unexpected type %T", event.Name, values[0])
	}
	step, err := model.CoerceUint64(values[1])
	if err != nil {
		return nil, fmt.Errorf("%s cashoutStep: %w", event.Name, err)
	}
	if step > math.MaxUint8 {
		return nil, fmt.Errorf("%s cashoutStep %d overflows uint8", event.Name, step)
	}
	amountReceived, err := model.CoerceBigInt(values[2])
	if err != nil {
		return nil, &model.FieldError{Event: event.Name, Field: "amountReceived", Err: err}
	}
	netWin, err := model.CoerceBigInt(values[3])
	if err != nil {
		return nil, &model.FieldError{Event: event.Name, Field: "playerNetWin", Err: err}
	}
	player, ok := model.CoerceAddress(args.Player)
	if !ok {
		return nil, fmt.Errorf("%s player: malformed address", event.Name)
	}

	return model.RoundSettledData{
		Player:         player,
		Won:            won,
		CashoutStep:    uint8(step),
		AmountReceived: amountReceived.String(),
		PlayerNetWin:   netWin.String(),
	}, nil
}

func (d *Decoder) decodeReferralBound(log model.EventLog, event abi.Event) (interface{}, error) {
	topics, indexed, err := checkTopics(log, event)
	if err != nil {
		return nil, err
	}

	var args struct {
		Player   common.Address
		Referrer common.Address
	}
	if err := abi.ParseTopics(&args, indexed, topics[1:]); err != nil {
		return nil, fmt.Errorf("parse %s topics: %w", event.Name, err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s expects 1 data field, got %d", event.Name, len(values))
	}
	code, ok := values[0].([32]byte)
	if !ok {
		return nil, fmt.Errorf("%s code: unexpected type %T", event.Name, values[0])
	}

	player, ok := model.CoerceAddress(args.Player)
	if !ok {
		return nil, fmt.Errorf("%s player: malformed address", event.Name)
	}
	referrer, ok := model.CoerceAddress(args.Referrer)
	if !ok {
		return nil, fmt.Errorf("%s referrer: malformed address", event.Name)
	}

	return model.ReferralBoundData{
		Player:   player,
		Referrer: referrer,
		Code:     hexutil.Encode(code[:]),
	}, nil
}

func (d *Decoder) decodeReferralRewardClaimed(log model.EventLog, event abi.Event) (interface{}, error) {
	topics, indexed, err := checkTopics(log, event)
	if err != nil {
		return nil, err
	}

	var args struct {
		Epoch    *big.Int
		Referrer common.Address
	}
	if err := abi.ParseTopics(&args, indexed, topics[1:]); err != nil {
		return nil, fmt.Errorf("parse %s topics: %w", event.Name, err)
	}
	if args.Epoch == nil {
		return nil, fmt.Errorf("%s epoch: missing topic value", event.Name)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s expects 1 data field, got %d", event.Name, len(values))
	}
	amount, err := model.CoerceBigInt(values[0])
	if err != nil {
		return nil, &model.FieldError{Event: event.Name, Field: "amount", Err: err}
	}

	referrer, ok := model.CoerceAddress(args.Referrer)
	if !ok {
		return nil, fmt.Errorf("%s referrer: malformed address", event.Name)
	}

	return model.ReferralRewardClaimedData{
		Epoch:    args.Epoch.String(),
		Referrer: referrer,
		Amount:   amount.String(),
	}, nil
}

// checkTopics validates the topic count against the event's indexed inputs
// and returns the parsed hashes alongside the indexed argument list.
func checkTopics(log model.EventLog, event abi.Event) ([]common.Hash, abi.Arguments, error) {
	topics, err := parseTopicHashes(log.Topics)
	if err != nil {
		return nil, nil, fmt.Errorf("%s topics: %w", event.Name, err)
	}
	indexed := indexedArguments(event)
	if len(topics) != len(indexed)+1 {
		return nil, nil, fmt.Errorf("%s expects %d topics, got %d", event.Name, len(indexed)+1, len(topics))
	}
	return topics, indexed, nil
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	hashes := make([]common.Hash, 0, len(topics))
	for i, topic := range topics {
		raw, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("topic %d: %w", i, err)
		}
		if len(raw) != common.HashLength {
			return nil, fmt.Errorf("topic %d: expected %d bytes, got %d", i, common.HashLength, len(raw))
		}
		hashes = append(hashes, common.BytesToHash(raw))
	}
	return hashes, nil
}

func indexedArguments(event abi.Event) abi.Arguments {
	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, data string) ([]interface{}, error) {
	raw, err := hexutil.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s data: %w", event.Name, err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s data: %w", event.Name, err)
	}
	return values, nil
}
