package game

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ContractRole names which deployed contract emits an event kind.
type ContractRole string

const (
	ContractGame     ContractRole = "game"
	ContractRegistry ContractRole = "registry"
)

// Kind identifies one of the decodable game events.
type Kind string

const (
	KindRoundSettled          Kind = "RoundSettled"
	KindReferralBound         Kind = "ReferralBound"
	KindReferralRewardClaimed Kind = "ReferralRewardClaimed"
)

// Spec describes how one event kind is fetched: the emitting contract and
// the positional topic slot that carries a wallet address, if any.
// AddressTopic is 0 when the kind cannot be narrowed by address server-side.
type Spec struct {
	Kind         Kind
	Contract     ContractRole
	AddressTopic int
}

var catalog = []Spec{
	{Kind: KindRoundSettled, Contract: ContractGame, AddressTopic: 1},
	{Kind: KindReferralBound, Contract: ContractRegistry, AddressTopic: 2},
	{Kind: KindReferralRewardClaimed, Contract: ContractRegistry, AddressTopic: 2},
}

// Catalog returns the specs for every decodable event kind.
func Catalog() []Spec {
	out := make([]Spec, len(catalog))
	copy(out, catalog)
	return out
}

// SpecFor returns the spec for a single kind.
func SpecFor(kind Kind) (Spec, error) {
	for _, s := range catalog {
		if s.Kind == kind {
			return s, nil
		}
	}
	return Spec{}, fmt.Errorf("unknown event kind %q", kind)
}

// TopicHash returns the topic0 signature hash for an event kind.
func TopicHash(kind Kind) (common.Hash, error) {
	parsed, err := GameABI()
	if err != nil {
		return common.Hash{}, err
	}
	event, ok := parsed.Events[string(kind)]
	if !ok {
		return common.Hash{}, fmt.Errorf("event %q not present in game ABI", kind)
	}
	return event.ID, nil
}

// AddressTopicValue encodes a wallet address as a 32-byte topic value for
// positional topic filters.
func AddressTopicValue(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
