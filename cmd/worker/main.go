package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/nmarkovic/seqsort/internal/fabric"
	"github.com/nmarkovic/seqsort/internal/record"
	"github.com/nmarkovic/seqsort/internal/samplesort"
	"github.com/nmarkovic/seqsort/internal/shared/config"
	"github.com/nmarkovic/seqsort/internal/shared/logging"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file")
		rank       = flag.Int("rank", -1, "this worker's rank in the cluster")
		input      = flag.String("input", "", "input files glob pattern (rank 0 only)")
		output     = flag.String("output", "", "output file path (rank 0 only)")
	)
	flag.Parse()

	cfg, err := config.LoadCluster(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	if *rank < 0 || *rank >= len(cfg.Cluster.Workers) {
		slog.Error("Rank out of range", "rank", *rank, "workers", len(cfg.Cluster.Workers))
		os.Exit(1)
	}
	if *rank == samplesort.Coordinator && (*input == "" || *output == "") {
		slog.Error("Rank 0 requires -input and -output")
		os.Exit(1)
	}

	runID := uuid.New()
	logger := logging.New(
		os.Stdout,
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With("run_id", runID.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.Cluster.Workers[*rank])
	if err != nil {
		logger.Fatal("Failed to listen", "addr", cfg.Cluster.Workers[*rank], "error", err)
	}

	transport, err := fabric.NewTCP(ctx, *rank, listener, cfg.Cluster.Workers, fabric.TCPOptions{
		ClusterName: cfg.Cluster.Name,
		DialTimeout: cfg.Cluster.DialTimeout,
	})
	if err != nil {
		logger.Fatal("Failed to establish cluster mesh", "error", err)
	}
	defer transport.Close()

	logger.Info("Cluster mesh established",
		"cluster", cfg.Cluster.Name,
		"rank", *rank,
		"workers", len(cfg.Cluster.Workers),
	)

	cluster := samplesort.NewCluster(fabric.NewGroup(transport), logger)

	opts := record.Options{
		MaxLength:  cfg.IO.MaxRecordLength,
		BufferSize: cfg.IO.ReadBufferSize,
	}
	tempOutput := fmt.Sprintf("%s.%s.tmp", *output, runID)
	job := samplesort.Job{
		ReadInput: func() ([]string, error) {
			return record.ReadGlob(*input, opts)
		},
		WriteOutput: func(records []string) error {
			return record.WriteFile(tempOutput, records)
		},
	}

	if err := samplesort.Run(ctx, cluster, job); err != nil {
		if cluster.IsCoordinator() {
			os.Remove(tempOutput)
		}
		logger.Fatal("Sort failed", "error", err)
	}

	if cluster.IsCoordinator() {
		if err := os.Rename(tempOutput, *output); err != nil {
			logger.Fatal("Failed to finalize output", "error", err)
		}
		logger.Info("Output written", "path", *output)
	}
}
