package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"leapScope/internal/chain"
	"leapScope/internal/config"
	"leapScope/internal/httpretry"
)

func runResolve(cmd *cobra.Command, _ []string) error {
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

	chainKey, _ := cmd.Flags().GetString("chain")
	tsRaw, _ := cmd.Flags().GetString("timestamp")
	closestRaw, _ := cmd.Flags().GetString("closest")

	if chainKey == "" {
		return fmt.Errorf("chain key is required")
	}
	ts, err := config.ParseTimestamp(tsRaw)
	if err != nil {
		return fmt.Errorf("parse timestamp: %w", err)
	}
	if ts <= 0 {
		return fmt.Errorf("timestamp is required")
	}

	closest, err := chain.ParseClosest(closestRaw)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Chains = []string{chainKey}
	httpClient := httpretry.NewClient(cfg.HTTPTimeout, httpretry.DefaultPolicy(), logger)
	sources, closeSources, err := buildSources(ctx, cfg, httpClient, logger)
	if err != nil {
		return err
	}
	defer closeSources()

	source := sources[0]
	number, err := source.BlockByTime(ctx, ts, closest)
	if err != nil {
		return err
	}
	latest, err := source.LatestBlock(ctx)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(map[string]interface{}{
		"chain":     chainKey,
		"timestamp": ts,
		"closest":   closestRaw,
		"block":     number,
		"latest":    latest,
		"source":    source.SourceName(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
