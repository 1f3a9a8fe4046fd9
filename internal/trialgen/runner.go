package trialgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/trialstats/internal/domain/classify"
	"github.com/okian/trialstats/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// ErrMissingFamilies is returned when the aggregate lacks families the
// generated trials should have produced.
var ErrMissingFamilies = errors.New("aggregate is missing families")

// Run executes a complete generation run.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting trial generation",
		logger.String("baseURL", config.BaseURL),
		logger.Int("users", config.Users),
		logger.Int("trialsPerLevel", config.TrialsPerLevel),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout),
		logger.Float64("missingRate", config.MissingRate),
		logger.Bool("verbose", config.Verbose))

	if err := checkServiceHealth(ctx, config); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	trials := NewGenerator(config.Seed, config.MissingRate).Generate(config.Users, config.TrialsPerLevel)
	stats.TrialsGenerated = len(trials)

	submitTrials(ctx, config, trials, stats)

	doc, err := fetchAggregate(ctx, config)
	if err != nil {
		return stats, err
	}
	stats.Families = len(doc)
	if err := verifyFamilies(doc, stats); err != nil {
		return stats, err
	}

	if config.OutputFile != "" {
		if err := saveTrials(config.OutputFile, trials); err != nil {
			log.Warn(ctx, "failed to save trials to file", logger.Error(err))
		} else {
			log.Info(ctx, "trials saved to file", logger.String("filename", config.OutputFile))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	resp, err := newHTTPClient(config.Timeout).Get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	return nil
}

// verifyFamilies checks every family is present once at least one trial
// was stored. A run with nothing stored can only expect an empty marker.
func verifyFamilies(doc map[string]json.RawMessage, stats *Stats) error {
	if stats.Stored+stats.Partial == 0 {
		return nil
	}
	var missing []string
	for _, f := range classify.Families {
		if _, ok := doc[string(f)]; !ok {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingFamilies, missing)
	}
	return nil
}

// saveTrials writes the generated trials as a JSON array.
func saveTrials(filename string, trials []Trial) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(trials, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal trials: %w", err)
	}
	return os.WriteFile(filename, data, filePermission)
}

// displayFinalStats logs the run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var successRate, trialsPerSecond float64
	if stats.Submitted > 0 {
		successRate = float64(stats.Stored+stats.Partial) / float64(stats.Submitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		trialsPerSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("trialsGenerated", stats.TrialsGenerated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("stored", stats.Stored),
		logger.Int("partial", stats.Partial),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("failed", stats.Failed),
		logger.Int("families", stats.Families),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("trialsPerSecond", trialsPerSecond))
}
