package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"leapScope/internal/config"
	"leapScope/internal/game"
	"leapScope/internal/httpretry"
	"leapScope/internal/model"
	"leapScope/internal/pipeline"
)

func runQuery(cmd *cobra.Command, _ []string) error {
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

	kind, _ := cmd.Flags().GetString("kind")
	timeframe, _ := cmd.Flags().GetString("timeframe")
	address, _ := cmd.Flags().GetString("address")
	limit, _ := cmd.Flags().GetInt("limit")
	dumpPath, _ := cmd.Flags().GetString("dump-logs")

	tf, err := pipeline.ParseTimeframe(timeframe)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := httpretry.NewClient(cfg.HTTPTimeout, httpretry.DefaultPolicy(), logger)
	sources, closeSources, err := buildSources(ctx, cfg, httpClient, logger)
	if err != nil {
		return err
	}
	defer closeSources()

	if dumpPath != "" {
		sink, err := newJSONLWriter(dumpPath)
		if err != nil {
			return err
		}
		defer sink.Close()
		for i, source := range sources {
			sources[i] = &dumpSource{ChainSource: source, sink: sink}
		}
		logger.Info("dumping fetched logs", zap.String("path", dumpPath))
	}

	decoder, err := game.NewDecoder()
	if err != nil {
		return err
	}
	orch, err := pipeline.NewOrchestrator(sources, decoder, logger)
	if err != nil {
		return err
	}

	result, err := orch.Run(ctx, pipeline.Request{
		Kind:      pipeline.RequestKind(kind),
		Timeframe: tf,
		Address:   address,
	})
	if err != nil {
		return err
	}
	if limit > 0 && len(result.Rows) > limit {
		result.Rows = result.Rows[:limit]
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// dumpSource tees every fetched log into a JSONL sink before handing it
// to the orchestrator. Chains run sequentially, so the sink needs no lock.
type dumpSource struct {
	pipeline.ChainSource
	sink *jsonlWriter
}

func (d *dumpSource) FetchLogs(ctx context.Context, event game.Kind, filterAddress string, blockRange model.BlockRange) ([]model.EventLog, error) {
	logs, err := d.ChainSource.FetchLogs(ctx, event, filterAddress, blockRange)
	if err != nil {
		return nil, err
	}
	for _, log := range logs {
		if err := d.sink.Write(log); err != nil {
			return nil, err
		}
	}
	return logs, nil
}

type jsonlWriter struct {
	file   *os.File
	writer *bufio.Writer
}

func newJSONLWriter(path string) (*jsonlWriter, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &jsonlWriter{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (w *jsonlWriter) Write(value interface{}) error {
	line, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

func (w *jsonlWriter) Close() error {
	if w == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
