// Package repository persists normalized telemetry rows in an append-only store.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/trialstats/internal/domain/model"
	"github.com/okian/trialstats/pkg/metrics"
)

// Supported drivers.
const (
	DriverCSV      = "csv"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is an append-only log of canonical rows.
type Store interface {
	// Append durably records one row. It returns only after the row is
	// persisted, or an error wrapping ErrUnavailable.
	Append(ctx context.Context, row model.Row) error

	// ReadAll returns the header and every row in write order.
	// Returns ErrEmpty if nothing was ever appended.
	ReadAll(ctx context.Context) (model.Table, error)

	// Driver names the backend.
	Driver() string

	Close() error
}

// Open builds the store for driver. Every returned store applies the
// configured per-call timeout and reports failures as ErrUnavailable.
func Open(ctx context.Context, driver string, opts ...Option) (Store, error) {
	s := settings{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&s)
	}

	var (
		inner Store
		err   error
	)
	switch driver {
	case DriverCSV:
		if s.path == "" {
			s.path = DefaultCSVPath
		}
		inner, err = NewCSVStore(s.path)
	case DriverSQLite:
		if s.path == "" {
			s.path = DefaultSQLitePath
		}
		inner, err = NewSQLiteStore(ctx, s.path)
	case DriverPostgres:
		inner, err = NewPostgresStore(ctx, s.dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	if err != nil {
		return nil, err
	}
	return Guard(inner, s.timeout), nil
}

// guarded decorates a backend with deadlines, error mapping and metrics.
type guarded struct {
	inner   Store
	timeout time.Duration
}

// Guard wraps a backend so each call runs under timeout and every failure
// other than ErrEmpty wraps ErrUnavailable.
func Guard(inner Store, timeout time.Duration) Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &guarded{inner: inner, timeout: timeout}
}

func (g *guarded) Driver() string { return g.inner.Driver() }

func (g *guarded) Close() error { return g.inner.Close() }

func (g *guarded) Append(ctx context.Context, row model.Row) error {
	if len(row) != model.FieldCount() {
		return fmt.Errorf("%w: got %d columns", ErrRowWidth, len(row))
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	err := g.inner.Append(ctx, row)
	metrics.RecordStoreAppendLatency(g.Driver(), sinceMs(start))
	if err != nil {
		metrics.RecordStoreError(g.Driver(), "append")
		return g.unavailable("append", err)
	}
	metrics.RecordRowAppended(g.Driver())
	return nil
}

func (g *guarded) ReadAll(ctx context.Context) (model.Table, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	t, err := g.inner.ReadAll(ctx)
	metrics.RecordStoreReadLatency(g.Driver(), sinceMs(start))
	if errors.Is(err, ErrEmpty) {
		metrics.UpdateStoreRows(0)
		return model.Table{}, err
	}
	if err != nil {
		metrics.RecordStoreError(g.Driver(), "read")
		return model.Table{}, g.unavailable("read", err)
	}
	metrics.UpdateStoreRows(len(t.Rows))
	return t, nil
}

func (g *guarded) unavailable(op string, err error) error {
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%s %s: %w: %w", g.Driver(), op, ErrUnavailable, err)
}

func sinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
