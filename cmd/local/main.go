package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/nmarkovic/seqsort/internal/local"
	"github.com/nmarkovic/seqsort/internal/record"
	"github.com/nmarkovic/seqsort/internal/shared/logging"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		input   = flag.String("input", "", "input files glob pattern")
		output  = flag.String("output", "", "output file path")
		workers = flag.Int("workers", runtime.NumCPU(), "number of workers (1 runs the sequential baseline)")
		maxLen  = flag.Int("max-record-length", record.DefaultMaxLength, "maximum record length in bytes")
		level   = flag.String("log-level", "info", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	if *input == "" {
		log.Fatal("Input pattern must be specified using the -input flag")
	}
	if *output == "" {
		log.Fatal("Output file must be specified using the -output flag")
	}
	if *workers < 1 {
		log.Fatal("Number of workers must be >= 1")
	}

	logger := logging.New(os.Stdout, logging.ParseLevel(*level), "json")

	engine := local.NewEngine(local.Config{
		Input:           *input,
		Output:          *output,
		Workers:         *workers,
		MaxRecordLength: *maxLen,
		Logger:          logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Run(ctx); err != nil {
		logger.Fatal("Sort failed", "error", err)
	}
}
