package game

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"leapScope/internal/model"
)

func TestDecoderRoundSettled(t *testing.T) {
	parsed, err := GameABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	player := common.HexToAddress("0x2222222222222222222222222222222222222222")
	received, _ := new(big.Int).SetString("500000000000000000000", 10)
	netWin, _ := new(big.Int).SetString("-50000000000000000000", 10)

	data, err := parsed.Events["RoundSettled"].Inputs.NonIndexed().Pack(
		true,
		uint8(7),
		received,
		netWin,
	)
	if err != nil {
		t.Fatalf("pack round settled: %v", err)
	}

	log := buildEventLog(parsed.Events["RoundSettled"].ID, data, []common.Hash{
		topicFromAddress(player),
	})

	event, err := decoder.Decode(log)
	if err != nil {
		t.Fatalf("decode round settled: %v", err)
	}
	if event.EventName != "RoundSettled" {
		t.Fatalf("event name mismatch: %s", event.EventName)
	}
	if event.BlockNumber != log.BlockNumber || event.TxHash != log.TxHash || event.LogIndex != log.LogIndex {
		t.Fatalf("log position not carried over: %+v", event)
	}

	settled, ok := event.Decoded.(model.RoundSettledData)
	if !ok {
		t.Fatalf("decoded type mismatch: %T", event.Decoded)
	}
	if settled.Player != strings.ToLower(player.Hex()) {
		t.Fatalf("player mismatch: %s", settled.Player)
	}
	if !settled.Won || settled.CashoutStep != 7 {
		t.Fatalf("outcome mismatch: %+v", settled)
	}
	if settled.AmountReceived != "500000000000000000000" {
		t.Fatalf("amount received mismatch: %s", settled.AmountReceived)
	}
	if settled.PlayerNetWin != "-50000000000000000000" {
		t.Fatalf("net win mismatch: %s", settled.PlayerNetWin)
	}
}

func TestDecoderReferralEvents(t *testing.T) {
	parsed, err := GameABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	player := common.HexToAddress("0x4444444444444444444444444444444444444444")
	referrer := common.HexToAddress("0x5555555555555555555555555555555555555555")

	var code [32]byte
	copy(code[:], []byte("TOADKING"))

	boundData, err := parsed.Events["ReferralBound"].Inputs.NonIndexed().Pack(code)
	if err != nil {
		t.Fatalf("pack bound: %v", err)
	}
	boundLog := buildEventLog(parsed.Events["ReferralBound"].ID, boundData, []common.Hash{
		topicFromAddress(player),
		topicFromAddress(referrer),
	})

	boundEvent, err := decoder.Decode(boundLog)
	if err != nil {
		t.Fatalf("decode bound: %v", err)
	}
	bound, ok := boundEvent.Decoded.(model.ReferralBoundData)
	if !ok {
		t.Fatalf("bound type mismatch: %T", boundEvent.Decoded)
	}
	if bound.Player != strings.ToLower(player.Hex()) || bound.Referrer != strings.ToLower(referrer.Hex()) {
		t.Fatalf("bound addresses mismatch: %+v", bound)
	}
	if bound.Code != hexutil.Encode(code[:]) {
		t.Fatalf("bound code mismatch: %s", bound.Code)
	}

	claimData, err := parsed.Events["ReferralRewardClaimed"].Inputs.NonIndexed().Pack(
		big.NewInt(120000000000),
	)
	if err != nil {
		t.Fatalf("pack claim: %v", err)
	}
	claimLog := buildEventLog(parsed.Events["ReferralRewardClaimed"].ID, claimData, []common.Hash{
		topicFromUint(42),
		topicFromAddress(referrer),
	})

	claimEvent, err := decoder.Decode(claimLog)
	if err != nil {
		t.Fatalf("decode claim: %v", err)
	}
	claim, ok := claimEvent.Decoded.(model.ReferralRewardClaimedData)
	if !ok {
		t.Fatalf("claim type mismatch: %T", claimEvent.Decoded)
	}
	if claim.Epoch != "42" {
		t.Fatalf("claim epoch mismatch: %s", claim.Epoch)
	}
	if claim.Referrer != strings.ToLower(referrer.Hex()) {
		t.Fatalf("claim referrer mismatch: %s", claim.Referrer)
	}
	if claim.Amount != "120000000000" {
		t.Fatalf("claim amount mismatch: %s", claim.Amount)
	}
}

func TestDecoderRejectsMalformedLogs(t *testing.T) {
	parsed, err := GameABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	player := common.HexToAddress("0x2222222222222222222222222222222222222222")

	unknown := buildEventLog(common.HexToHash("0xdeadbeef"), nil, []common.Hash{
		topicFromAddress(player),
	})
	if decoder.CanDecode(unknown.Topics[0]) {
		t.Fatalf("unknown topic0 reported decodable")
	}
	if _, err := decoder.Decode(unknown); err == nil {
		t.Fatalf("expected unknown topic0 error")
	}

	data, err := parsed.Events["RoundSettled"].Inputs.NonIndexed().Pack(
		false,
		uint8(1),
		big.NewInt(10),
		big.NewInt(-10),
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	extraTopic := buildEventLog(parsed.Events["RoundSettled"].ID, data, []common.Hash{
		topicFromAddress(player),
		topicFromAddress(player),
	})
	if _, err := decoder.Decode(extraTopic); err == nil {
		t.Fatalf("expected topic count error")
	}

	truncated := buildEventLog(parsed.Events["RoundSettled"].ID, data[:8], []common.Hash{
		topicFromAddress(player),
	})
	if _, err := decoder.Decode(truncated); err == nil {
		t.Fatalf("expected truncated data error")
	}

	noTopics := model.EventLog{ChainKey: "base", TxHash: "0xabc", Data: "0x"}
	if _, err := decoder.Decode(noTopics); err == nil {
		t.Fatalf("expected missing topics error")
	}
}

func TestCatalogTopicsMatchDecoder(t *testing.T) {
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	for _, spec := range Catalog() {
		topic, err := TopicHash(spec.Kind)
		if err != nil {
			t.Fatalf("topic hash for %s: %v", spec.Kind, err)
		}
		if !decoder.CanDecode(topic.Hex()) {
			t.Fatalf("catalog kind %s not decodable", spec.Kind)
		}
		if !decoder.CanDecode(strings.ToUpper(topic.Hex())) {
			t.Fatalf("topic0 lookup should be case-insensitive for %s", spec.Kind)
		}
	}

	if _, err := SpecFor(KindRoundSettled); err != nil {
		t.Fatalf("spec lookup: %v", err)
	}
	if _, err := SpecFor(Kind("Bogus")); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestAddressTopicValueRoundTrip(t *testing.T) {
	addr := common.HexToAddress("0x7777777777777777777777777777777777777777")
	topic := AddressTopicValue(addr)
	if common.HexToAddress(topic.Hex()) != addr {
		t.Fatalf("topic value does not round-trip: %s", topic.Hex())
	}
}

func buildEventLog(topic0 common.Hash, data []byte, indexed []common.Hash) model.EventLog {
	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, strings.ToLower(topic0.Hex()))
	for _, topic := range indexed {
		topics = append(topics, strings.ToLower(topic.Hex()))
	}

	return model.EventLog{
		ChainKey:    "base",
		BlockNumber: 12345,
		Timestamp:   1700000000,
		TxHash:      "0xdef",
		LogIndex:    3,
		Address:     "0x52a9be1e15e8c45e4fcbad3b29cd0ee3087c6f1d",
		Topics:      topics,
		Data:        hexutil.Encode(data),
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func topicFromUint(value uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(value))
}
