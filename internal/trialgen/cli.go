package trialgen

import "os"

// ShowHelp prints usage information for the trial generator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Trial Generator
===============

Generates synthetic multimodal trials, uploads them to a trialstats
service and checks that every task family shows up in the aggregate.

Usage:
  go run ./cmd/trial-gen [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -users int
        Number of synthetic participants (default 20)
  -trials int
        Trials per participant per level (default 5)
  -workers int
        Number of concurrent uploaders (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -seed uint
        Generator seed, 0 for a random seed
  -missing float
        Share of trials carrying a non-numeric metric (default 0.05)
  -output string
        Write generated trials to this JSON file
  -log-format string
        Log format, text or json (default "text")
  -verbose
        Log every upload
  -help
        Show this help message

Examples:
  # Replay the same participants, idempotency keys and metrics
  go run ./cmd/trial-gen -seed 42 -users 50
`)
}
