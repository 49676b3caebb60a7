package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"leapScope/internal/chain"
	"leapScope/internal/explorer"
	"leapScope/internal/game"
	"leapScope/internal/model"
)

// ChainSource is one chain's view for the orchestrator: range resolution,
// log fetching and block metadata.
type ChainSource interface {
	Key() string
	SourceName() string
	LatestBlock(ctx context.Context) (uint64, error)
	BlockByTime(ctx context.Context, ts int64, closest chain.Closest) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FetchLogs(ctx context.Context, event game.Kind, filterAddress string, blockRange model.BlockRange) ([]model.EventLog, error)
}

// Source composes the RPC client with an optional explorer client. A
// configured explorer serves range resolution and log fetching; the RPC
// path covers everything otherwise.
type Source struct {
	cfg      chain.Config
	client   *chain.Client
	resolver *chain.Resolver
	explorer *explorer.Client
	logger   *zap.Logger
}

func NewSource(cfg chain.Config, client *chain.Client, explorerClient *explorer.Client, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		cfg:      cfg,
		client:   client,
		resolver: chain.NewResolver(client, cfg.AvgBlockTimeSeconds, logger),
		explorer: explorerClient,
		logger:   logger,
	}
}

func (s *Source) Key() string {
	return s.cfg.Key
}

func (s *Source) SourceName() string {
	if s.explorer != nil {
		return "explorer"
	}
	return "rpc"
}

func (s *Source) LatestBlock(ctx context.Context) (uint64, error) {
	return s.client.LatestBlockNumber(ctx)
}

func (s *Source) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	return s.client.BlockTimestamp(ctx, number)
}

func (s *Source) BlockByTime(ctx context.Context, ts int64, closest chain.Closest) (uint64, error) {
	if s.explorer != nil {
		return s.explorer.BlockNumberByTime(ctx, ts, closest)
	}
	return s.resolver.BlockByTime(ctx, ts, closest)
}

// FetchLogs fetches one event kind's logs over a block range, applying the
// wallet address as a positional topic filter when the kind supports it.
func (s *Source) FetchLogs(ctx context.Context, event game.Kind, filterAddress string, blockRange model.BlockRange) ([]model.EventLog, error) {
	spec, err := game.SpecFor(event)
	if err != nil {
		return nil, err
	}
	topic0, err := game.TopicHash(event)
	if err != nil {
		return nil, err
	}
	contract, err := s.contractFor(spec.Contract)
	if err != nil {
		return nil, err
	}

	if s.explorer != nil {
		q := explorer.LogQuery{
			Range:   blockRange,
			Address: strings.ToLower(contract),
			Topic0:  strings.ToLower(topic0.Hex()),
		}
		if filterAddress != "" && spec.AddressTopic > 0 {
			topic := game.AddressTopicValue(common.HexToAddress(filterAddress))
			q.TopicFilters = map[int]string{
				spec.AddressTopic: strings.ToLower(topic.Hex()),
			}
		}
		return s.explorer.Logs(ctx, q)
	}

	topics := [][]common.Hash{{topic0}}
	if filterAddress != "" && spec.AddressTopic > 0 {
		for len(topics) < spec.AddressTopic {
			topics = append(topics, nil)
		}
		topics = append(topics, []common.Hash{game.AddressTopicValue(common.HexToAddress(filterAddress))})
	}
	return s.client.LogsInRange(ctx, chain.LogQuery{
		Range:   blockRange,
		Address: common.HexToAddress(contract),
		Topics:  topics,
	})
}

func (s *Source) contractFor(role game.ContractRole) (string, error) {
	switch role {
	case game.ContractGame:
		return s.cfg.GameContract, nil
	case game.ContractRegistry:
		return s.cfg.RegistryContract, nil
	default:
		return "", fmt.Errorf("unknown contract role %q", role)
	}
}
