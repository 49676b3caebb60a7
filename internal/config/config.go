package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"leapScope/internal/chain"
	"leapScope/internal/price"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	ListenAddr        string
	LogLevel          string
	Chains            []string
	RPCEndpoints      map[string][]string
	ExplorerBases     map[string]string
	GameContracts     map[string]string
	RegistryContracts map[string]string
	CacheDisabled     bool
	PriceAPIBase      string
	PriceCoinID       string
	HTTPTimeout       time.Duration
}

// Load merges config file, environment variables, and flags into Config.
// Per-chain endpoint and explorer overrides live under rpc-<key> and
// explorer-<key>; contract overrides are key=address maps.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEAPSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen-addr", ":8080")
	v.SetDefault("log-level", "info")
	v.SetDefault("chains", DefaultChainKeys())
	v.SetDefault("cache-disabled", false)
	v.SetDefault("price-api-base", price.DefaultBase)
	v.SetDefault("price-coin-id", price.DefaultCoinID)
	v.SetDefault("http-timeout", 10*time.Second)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("leapscope")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		ListenAddr:        v.GetString("listen-addr"),
		LogLevel:          v.GetString("log-level"),
		Chains:            chainKeys(getStringSlice(v, "chains")),
		RPCEndpoints:      make(map[string][]string),
		ExplorerBases:     make(map[string]string),
		GameContracts:     getStringMap(v, "game-contracts"),
		RegistryContracts: getStringMap(v, "registry-contracts"),
		CacheDisabled:     v.GetBool("cache-disabled"),
		PriceAPIBase:      v.GetString("price-api-base"),
		PriceCoinID:       v.GetString("price-coin-id"),
		HTTPTimeout:       v.GetDuration("http-timeout"),
	}
	if len(cfg.Chains) == 0 {
		cfg.Chains = DefaultChainKeys()
	}

	for _, key := range cfg.Chains {
		if endpoints := getStringSlice(v, "rpc-"+key); len(endpoints) > 0 {
			cfg.RPCEndpoints[key] = endpoints
		}
		if base := v.GetString("explorer-" + key); base != "" {
			cfg.ExplorerBases[key] = base
		}
	}

	return cfg, nil
}

// ChainConfigs resolves the enabled chain set against the built-in chain
// registry, applying endpoint, explorer and contract overrides. Every
// resolved chain is validated before use.
func (c Config) ChainConfigs() ([]chain.Config, error) {
	byKey := make(map[string]chain.Config)
	for _, cc := range chain.Defaults() {
		byKey[cc.Key] = cc
	}

	out := make([]chain.Config, 0, len(c.Chains))
	for _, key := range c.Chains {
		cc, ok := byKey[key]
		if !ok {
			return nil, fmt.Errorf("unknown chain %q", key)
		}
		if endpoints := c.RPCEndpoints[key]; len(endpoints) > 0 {
			cc.RPCEndpoints = endpoints
		}
		if base := c.ExplorerBases[key]; base != "" {
			cc.ExplorerAPIBase = base
		}
		if addr := c.GameContracts[key]; addr != "" {
			cc.GameContract = addr
		}
		if addr := c.RegistryContracts[key]; addr != "" {
			cc.RegistryContract = addr
		}
		if err := cc.Validate(); err != nil {
			return nil, err
		}
		out = append(out, cc)
	}
	return out, nil
}

// DefaultChainKeys lists the built-in chain keys in registry order.
func DefaultChainKeys() []string {
	defaults := chain.Defaults()
	keys := make([]string, 0, len(defaults))
	for _, cc := range defaults {
		keys = append(keys, cc.Key)
	}
	return keys
}

func chainKeys(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		key := strings.ToLower(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
