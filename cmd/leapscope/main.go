package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"leapScope/internal/api"
	"leapScope/internal/cache"
	"leapScope/internal/chain"
	"leapScope/internal/config"
	"leapScope/internal/explorer"
	"leapScope/internal/game"
	"leapScope/internal/httpretry"
	"leapScope/internal/pipeline"
	"leapScope/internal/price"
)

func main() {
	root := &cobra.Command{
		Use:          "leapscope",
		Short:        "Lilypad Leap on-chain aggregation service",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the leaderboard and profile API",
		RunE:  runServe,
	}
	addPipelineFlags(serveCmd.Flags())
	serveCmd.Flags().String("listen-addr", ":8080", "HTTP listen address")
	serveCmd.Flags().Bool("cache-disabled", false, "disable the response cache")
	serveCmd.Flags().String("price-api-base", price.DefaultBase, "price API base URL")
	serveCmd.Flags().String("price-coin-id", price.DefaultCoinID, "price API coin id for USD annotation")
	root.AddCommand(serveCmd)

	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Run one aggregation pass and print the result JSON",
		RunE:  runQuery,
	}
	addPipelineFlags(queryCmd.Flags())
	queryCmd.Flags().String("kind", "leaderboard", "request kind (leaderboard, profile_games, profile_referrals)")
	queryCmd.Flags().String("timeframe", "all", "timeframe (daily, weekly, monthly, all)")
	queryCmd.Flags().String("address", "", "wallet address for profile kinds")
	queryCmd.Flags().Int("limit", 0, "truncate rows to this many (0 keeps all)")
	queryCmd.Flags().String("dump-logs", "", "write fetched raw logs to a JSONL file")
	root.AddCommand(queryCmd)

	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a timestamp to a block number on one chain",
		RunE:  runResolve,
	}
	addPipelineFlags(resolveCmd.Flags())
	resolveCmd.Flags().String("chain", "", "chain key")
	resolveCmd.Flags().String("timestamp", "", "timestamp (unix seconds or RFC3339)")
	resolveCmd.Flags().String("closest", "before", "rounding side (before, after)")
	root.AddCommand(resolveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// addPipelineFlags declares the flags every command that builds chain
// sources shares. Per-chain overrides are declared for each built-in chain.
func addPipelineFlags(flags *pflag.FlagSet) {
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.StringSlice("chains", nil, "enabled chain keys (comma-separated)")
	flags.String("game-contracts", "", "game contract overrides (comma-separated key=address)")
	flags.String("registry-contracts", "", "registry contract overrides (comma-separated key=address)")
	flags.Duration("http-timeout", 10*time.Second, "timeout per upstream HTTP request")
	for _, cc := range chain.Defaults() {
		flags.StringSlice("rpc-"+cc.Key, nil, fmt.Sprintf("%s RPC endpoint overrides (comma-separated)", cc.Key))
		flags.String("explorer-"+cc.Key, "", fmt.Sprintf("%s explorer API base override", cc.Key))
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := httpretry.NewClient(cfg.HTTPTimeout, httpretry.DefaultPolicy(), logger)

	sources, closeSources, err := buildSources(ctx, cfg, httpClient, logger)
	if err != nil {
		return err
	}
	defer closeSources()

	decoder, err := game.NewDecoder()
	if err != nil {
		return err
	}
	orch, err := pipeline.NewOrchestrator(sources, decoder, logger)
	if err != nil {
		return err
	}

	var store *cache.Store
	if !cfg.CacheDisabled {
		store = cache.NewStore(logger)
		store.StartSweeper(ctx)
	}

	quoter := price.NewClient(cfg.PriceAPIBase, cfg.PriceCoinID, httpClient, logger)

	server := api.NewServer(orch, store, quoter, api.Options{
		ListenAddr: cfg.ListenAddr,
		Chains:     cfg.Chains,
	}, logger)

	if err := server.Start(); err != nil {
		return err
	}
	logger.Info("service start",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.Strings("chains", cfg.Chains),
		zap.Bool("cache_disabled", cfg.CacheDisabled),
		zap.String("price_api", cfg.PriceAPIBase),
	)

	<-ctx.Done()
	logger.Info("shutting down")
	return server.Stop()
}

// buildSources dials every enabled chain and wraps each in a pipeline
// source. The returned closer releases all RPC connections.
func buildSources(ctx context.Context, cfg config.Config, httpClient *httpretry.Client, logger *zap.Logger) ([]pipeline.ChainSource, func(), error) {
	chainCfgs, err := cfg.ChainConfigs()
	if err != nil {
		return nil, nil, err
	}

	clients := make([]*chain.Client, 0, len(chainCfgs))
	closeAll := func() {
		for _, client := range clients {
			client.Close()
		}
	}

	sources := make([]pipeline.ChainSource, 0, len(chainCfgs))
	for _, cc := range chainCfgs {
		client, err := chain.NewClient(ctx, cc, httpretry.DefaultPolicy(), logger)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connect %s rpc: %w", cc.Key, err)
		}
		clients = append(clients, client)

		var explorerClient *explorer.Client
		if cc.ExplorerAPIBase != "" {
			explorerClient = explorer.NewClient(cc.Key, cc.ExplorerAPIBase, httpClient, logger)
		}
		sources = append(sources, pipeline.NewSource(cc, client, explorerClient, logger))
	}
	return sources, closeAll, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
