// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/trialstats/internal/adapters/repository"
	"github.com/okian/trialstats/internal/adapters/repository/mirror"
	"github.com/okian/trialstats/internal/domain/aggregate"
	"github.com/okian/trialstats/internal/domain/classify"
	"github.com/okian/trialstats/internal/domain/dedupe"
	"github.com/okian/trialstats/internal/domain/normalize"
	"github.com/okian/trialstats/internal/domain/report"
	"github.com/okian/trialstats/pkg/logger"
	"github.com/okian/trialstats/pkg/metrics"
)

// Upload outcomes.
const (
	StatusOK        = "ok"
	StatusPartial   = "partial"
	StatusDuplicate = "duplicate"
)

// UploadResult describes what happened to one upload. MirrorErrors is set
// when the primary append succeeded but a mirror did not.
type UploadResult struct {
	Status       string
	MirrorErrors []string
}

// Service implements the API dependencies for the telemetry system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	mirrors []mirror.Mirror
	deduper dedupe.Deduper
	engine  *aggregate.Engine

	// Configuration
	dedupeSize int

	// State
	started      bool
	uploads      atomic.Int64
	duplicates   atomic.Int64
	aggregations atomic.Int64

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the primary append-only store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithMirrors adds secondary destinations for every accepted row.
func WithMirrors(mirrors ...mirror.Mirror) Option {
	return func(s *Service) {
		for _, m := range mirrors {
			if m != nil {
				s.mirrors = append(s.mirrors, m)
			}
		}
	}
}

// WithEngine sets the aggregation engine.
func WithEngine(engine *aggregate.Engine) Option {
	return func(s *Service) {
		if engine != nil {
			s.engine = engine
		}
	}
}

// WithDedupeSize sets the size of the idempotency key cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		s.dedupeSize = size
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		engine:     aggregate.New(),
		dedupeSize: 50_000,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.store == nil {
		return ErrNoStore
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))

	names := make([]string, len(s.mirrors))
	for i, m := range s.mirrors {
		names[i] = m.Name()
	}

	s.started = true
	s.logger.Info(ctx, "telemetry service started",
		logger.String("driver", s.store.Driver()),
		logger.Any("mirrors", names),
		logger.String("entity", s.engine.Entity()),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop releases the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing store", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "telemetry service stopped")
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Upload normalizes one raw record and appends it to the primary store,
// then copies it to every mirror. A non-empty idemKey already stored within
// the cache window is acknowledged without appending; one whose first
// upload is still running is refused with ErrInFlight.
func (s *Service) Upload(ctx context.Context, raw map[string]any, idemKey string) (UploadResult, error) {
	if err := s.ready(); err != nil {
		return UploadResult{}, err
	}
	if raw == nil {
		metrics.RecordUploadRejected("invalid_record")
		return UploadResult{}, ErrInvalidRecord
	}

	if idemKey != "" {
		switch s.deduper.Reserve(ctx, idemKey) {
		case dedupe.Seen:
			s.duplicates.Add(1)
			metrics.RecordUploadDuplicate()
			s.logger.Debug(ctx, "duplicate upload skipped", logger.String("idempotencyKey", idemKey))
			return UploadResult{Status: StatusDuplicate}, nil
		case dedupe.InFlight:
			metrics.RecordUploadRejected("in_flight")
			return UploadResult{}, fmt.Errorf("%w: %s", ErrInFlight, idemKey)
		}
	}

	row := normalize.Row(raw)
	start := time.Now()
	if err := s.store.Append(ctx, row); err != nil {
		if idemKey != "" {
			s.deduper.Release(ctx, idemKey)
		}
		metrics.RecordErrorByComponent("store", "append")
		metrics.RecordErrorLatency("store", "append", float64(time.Since(start).Microseconds())/1000)
		s.logger.Error(ctx, "append failed",
			logger.String("driver", s.store.Driver()),
			logger.Error(err),
		)
		return UploadResult{}, err
	}
	if idemKey != "" {
		s.deduper.Commit(ctx, idemKey)
	}
	s.uploads.Add(1)
	metrics.RecordUploadReceived()
	metrics.UpdateDedupeKeys(s.deduper.Size())

	res := UploadResult{Status: StatusOK}
	for _, m := range s.mirrors {
		if err := m.Put(ctx, row); err != nil {
			metrics.RecordErrorByComponent("mirror", m.Name())
			s.logger.Warn(ctx, "mirror write failed",
				logger.String("mirror", m.Name()),
				logger.Error(err),
			)
			res.Status = StatusPartial
			res.MirrorErrors = append(res.MirrorErrors, fmt.Sprintf("%s: %v", m.Name(), err))
		}
	}
	return res, nil
}

// Aggregate reads the whole store and summarizes every task family.
// Returns ErrEmpty when nothing has been recorded.
func (s *Service) Aggregate(ctx context.Context) (report.Document, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	table, err := s.store.ReadAll(ctx)
	if errors.Is(err, ErrEmpty) {
		return nil, err
	}
	if err != nil {
		metrics.RecordErrorByComponent("store", "read")
		s.logger.Error(ctx, "read failed",
			logger.String("driver", s.store.Driver()),
			logger.Error(err),
		)
		return nil, err
	}

	res := s.engine.Aggregate(table.Canonical())
	for _, f := range classify.Families {
		sum := res.Families[f]
		metrics.UpdateFamilyRows(string(f), sum.Trials, sum.Excluded)
	}
	metrics.UpdateUnclassifiedRows(res.Unclassified)

	doc := report.Render(res)
	elapsed := time.Since(start)
	s.aggregations.Add(1)
	metrics.RecordAggregation(float64(elapsed.Microseconds()) / 1000)
	s.logger.Debug(ctx, "aggregation complete",
		logger.Int("rows", res.Rows),
		logger.Int("families", len(doc)),
		logger.Int("unclassified", res.Unclassified),
		logger.Duration("elapsed", elapsed),
	)
	return doc, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mirrors := make([]string, len(s.mirrors))
	for i, m := range s.mirrors {
		mirrors[i] = m.Name()
	}
	stats := map[string]interface{}{
		"started":      s.started,
		"mirrors":      mirrors,
		"entity":       s.engine.Entity(),
		"dedupeSize":   s.dedupeSize,
		"uploads":      s.uploads.Load(),
		"duplicates":   s.duplicates.Load(),
		"aggregations": s.aggregations.Load(),
	}
	if s.store != nil {
		stats["driver"] = s.store.Driver()
	}
	if s.started {
		keys := s.deduper.Size()
		stats["dedupeKeys"] = keys
		metrics.UpdateDedupeKeys(keys)
	}
	return stats
}

// Size returns the current number of remembered idempotency keys.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}
