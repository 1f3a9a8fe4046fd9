// Package dedupe tracks upload idempotency keys.
package dedupe

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultMaxSize bounds the number of remembered keys.
const defaultMaxSize = 50_000

// Status is the outcome of Reserve.
type Status int

const (
	// Reserved means the caller now owns the key and must Commit or Release it.
	Reserved Status = iota
	// InFlight means another caller holds the key and has not finished.
	InFlight
	// Seen means an earlier upload with the key was stored.
	Seen
)

func (s Status) String() string {
	switch s {
	case Reserved:
		return "reserved"
	case InFlight:
		return "in_flight"
	case Seen:
		return "seen"
	default:
		return "unknown"
	}
}

// Deduper records idempotency keys so a retried upload is appended at most once.
// A key moves from pending to seen only once its append succeeded.
type Deduper interface {
	// Reserve atomically claims key unless it is pending or already seen.
	Reserve(ctx context.Context, key string) Status

	// Commit marks a reserved key as seen.
	Commit(ctx context.Context, key string)

	// Release drops a reservation so the client may retry.
	Release(ctx context.Context, key string)

	// Size counts seen keys.
	Size() int64
}

// inMemoryDeduper keeps seen keys in an LRU when bounded, or a plain map
// when maxSize <= 0. Pending keys are never evicted.
type inMemoryDeduper struct {
	maxSize int
	cache   *lru.Cache[string, struct{}]

	mu      sync.Mutex
	pending map[string]struct{}
	seen    map[string]struct{}
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
		pending: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.maxSize > 0 {
		c, err := lru.New[string, struct{}](d.maxSize)
		if err == nil {
			d.cache = c
			return d
		}
	}
	d.seen = make(map[string]struct{})
	return d
}

func (d *inMemoryDeduper) Reserve(_ context.Context, key string) Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.pending[key]; ok {
		return InFlight
	}
	if d.contains(key) {
		return Seen
	}
	d.pending[key] = struct{}{}
	return Reserved
}

func (d *inMemoryDeduper) Commit(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.pending, key)
	if d.cache != nil {
		d.cache.Add(key, struct{}{})
		return
	}
	d.seen[key] = struct{}{}
}

func (d *inMemoryDeduper) Release(_ context.Context, key string) {
	d.mu.Lock()
	delete(d.pending, key)
	d.mu.Unlock()
}

func (d *inMemoryDeduper) Size() int64 {
	if d.cache != nil {
		return int64(d.cache.Len())
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}

// contains refreshes recency for a seen key. Callers hold d.mu.
func (d *inMemoryDeduper) contains(key string) bool {
	if d.cache != nil {
		_, ok := d.cache.Get(key)
		return ok
	}
	_, ok := d.seen[key]
	return ok
}
