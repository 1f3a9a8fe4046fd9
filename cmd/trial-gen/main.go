package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/trialstats/internal/trialgen"
	"github.com/okian/trialstats/pkg/logger"
)

// Default configuration constants.
const (
	defaultUsers          = 20
	defaultTrialsPerLevel = 5
	defaultWorkers        = 2 // multiplier for runtime.NumCPU()
	defaultTimeout        = 30 * time.Second
	defaultMissingRate    = 0.05
	defaultRunTimeout     = 10 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		users       = flag.Int("users", defaultUsers, "Number of synthetic participants")
		trials      = flag.Int("trials", defaultTrialsPerLevel, "Trials per participant per level")
		workers     = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent uploaders")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seed        = flag.Uint64("seed", 0, "Generator seed, 0 for a random seed")
		missingRate = flag.Float64("missing", defaultMissingRate, "Share of trials carrying a non-numeric metric")
		outputFile  = flag.String("output", "", "Write generated trials to this JSON file")
		logFormat   = flag.String("log-format", "text", "Log format, text or json")
		verbose     = flag.Bool("verbose", false, "Log every upload")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		trialgen.ShowHelp()
		return
	}

	if err := logger.Init(logger.WithFormat(*logFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &trialgen.Config{
		BaseURL:        *baseURL,
		Users:          *users,
		TrialsPerLevel: *trials,
		Workers:        max(*workers, 1),
		Timeout:        *timeout,
		Seed:           *seed,
		MissingRate:    *missingRate,
		OutputFile:     *outputFile,
		Verbose:        *verbose,
	}

	if _, err := trialgen.Run(ctx, config); err != nil {
		logger.Get().Error(ctx, "trial generation failed", logger.Error(err))
		os.Exit(1)
	}
}
