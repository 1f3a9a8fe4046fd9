package trialgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/trialstats/pkg/logger"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client *http.Client
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// Get performs a GET request
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with a JSON body and optional idempotency key.
func (c *HTTPClient) Post(ctx context.Context, url, key string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return c.client.Do(req)
}

// submitTrials uploads trials concurrently using a worker pool.
func submitTrials(ctx context.Context, config *Config, trials []Trial, stats *Stats) {
	log := logger.Get()
	log.Info(ctx, "submitting trials", logger.Int("trials", len(trials)), logger.Int("workers", config.Workers))

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/upload"

	var submitted, stored, partial, duplicate, failed atomic.Int64
	var lastReport atomic.Int64

	trialChan := make(chan Trial, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for trial := range trialChan {
				outcome := submitSingleTrial(ctx, client, url, trial)
				submitted.Add(1)
				switch outcome {
				case outcomeStored:
					stored.Add(1)
				case outcomePartial:
					partial.Add(1)
				case outcomeDuplicate:
					duplicate.Add(1)
				default:
					failed.Add(1)
				}
				if config.Verbose {
					log.Debug(ctx, "trial submitted", logger.String("key", trial.Key), logger.String("outcome", outcome))
				}

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if now-last >= int64(ProgressInterval) && lastReport.CompareAndSwap(last, now) {
					log.Info(ctx, "progress",
						logger.Int64("submitted", submitted.Load()),
						logger.Int("total", len(trials)),
						logger.Int64("failed", failed.Load()))
				}
			}
		}()
	}

	go func() {
		defer close(trialChan)
		for _, trial := range trials {
			select {
			case <-ctx.Done():
				return
			case trialChan <- trial:
			}
		}
	}()

	wg.Wait()

	stats.Submitted = int(submitted.Load())
	stats.Stored = int(stored.Load())
	stats.Partial = int(partial.Load())
	stats.Duplicate = int(duplicate.Load())
	stats.Failed = int(failed.Load())

	log.Info(ctx, "trial submission completed",
		logger.Int("stored", stats.Stored),
		logger.Int("partial", stats.Partial),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("failed", stats.Failed))
}

// submitSingleTrial uploads one trial and classifies the response.
func submitSingleTrial(ctx context.Context, client *HTTPClient, url string, trial Trial) string {
	resp, err := client.Post(ctx, url, trial.Key, trial.Fields)
	if err != nil {
		return outcomeFailed
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		return outcomeFailed
	}

	var ack UploadResponse
	if err := json.Unmarshal(body, &ack); err != nil {
		return outcomeStored
	}
	switch ack.Status {
	case outcomePartial:
		return outcomePartial
	case outcomeDuplicate:
		return outcomeDuplicate
	default:
		return outcomeStored
	}
}

// fetchAggregate retrieves GET /aggregate as family name to raw summary.
func fetchAggregate(ctx context.Context, config *Config) (map[string]json.RawMessage, error) {
	client := newHTTPClient(config.Timeout)
	resp, err := client.Get(ctx, config.BaseURL+"/aggregate")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch aggregate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("aggregate returned status %d", resp.StatusCode)
	}
	var doc map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode aggregate: %w", err)
	}
	return doc, nil
}
