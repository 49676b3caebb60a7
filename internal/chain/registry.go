package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Config describes one chain the pipeline can aggregate over. Immutable for
// the process lifetime.
type Config struct {
	Key                 string
	ChainID             uint64
	GameContract        string
	RegistryContract    string
	RPCEndpoints        []string
	ExplorerAPIBase     string
	AvgBlockTimeSeconds uint64
	RateLimitPerSec     float64
	RateBurst           int
}

// Validate checks the static fields a chain cannot run without.
func (c Config) Validate() error {
	if c.Key == "" {
		return fmt.Errorf("chain key is required")
	}
	if c.ChainID == 0 {
		return fmt.Errorf("chain %s: chain id is required", c.Key)
	}
	if len(c.RPCEndpoints) == 0 {
		return fmt.Errorf("chain %s: at least one rpc endpoint is required", c.Key)
	}
	if !common.IsHexAddress(c.GameContract) {
		return fmt.Errorf("chain %s: invalid game contract %q", c.Key, c.GameContract)
	}
	if !common.IsHexAddress(c.RegistryContract) {
		return fmt.Errorf("chain %s: invalid registry contract %q", c.Key, c.RegistryContract)
	}
	return nil
}

// Defaults returns the built-in chain set. Config may override endpoints,
// explorer bases and contract addresses per chain.
func Defaults() []Config {
	return []Config{
		{
			Key:              "base",
			ChainID:          8453,
			GameContract:     "0x52A9bE1e15E8C45E4fCbAd3B29cD0Ee3087c6F1D",
			RegistryContract: "0x3D4cC1E38A96C7E6E5cBbD0cA2F40817D92Aa6B4",
			RPCEndpoints: []string{
				"https://mainnet.base.org",
				"https://base.llamarpc.com",
			},
			ExplorerAPIBase:     "https://api.basescan.org/api",
			AvgBlockTimeSeconds: 2,
			RateLimitPerSec:     5,
			RateBurst:           5,
		},
		{
			Key:              "linea",
			ChainID:          59144,
			GameContract:     "0x8Be5A1cF2D7C4E0aB93F1d6E87A25C40D19fE6a3",
			RegistryContract: "0xA6D2F08B3C571Ee49d8516BbFf40C6E2D30979Cc",
			RPCEndpoints: []string{
				"https://rpc.linea.build",
				"https://1rpc.io/linea",
			},
			ExplorerAPIBase:     "https://api.lineascan.build/api",
			AvgBlockTimeSeconds: 3,
			RateLimitPerSec:     5,
			RateBurst:           5,
		},
	}
}
