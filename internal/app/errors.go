package service

import (
	"errors"

	"github.com/okian/trialstats/internal/adapters/repository"
)

// Sentinel kinds returned by the service.
var (
	// ErrEmpty means nothing has been recorded yet.
	ErrEmpty = repository.ErrEmpty
	// ErrUnavailable means the primary store could not be reached.
	ErrUnavailable = repository.ErrUnavailable

	ErrInvalidRecord = errors.New("record must be a JSON object")
	ErrNoStore       = errors.New("service has no store")
	ErrNotStarted    = errors.New("service not started")
	// ErrInFlight means an upload with the same idempotency key is still running.
	ErrInFlight = errors.New("upload with this idempotency key in progress")
)
