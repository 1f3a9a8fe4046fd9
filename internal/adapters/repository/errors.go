package repository

import "errors"

// Sentinel kinds for store errors.
var (
	// ErrEmpty is returned by ReadAll when nothing has ever been appended.
	ErrEmpty = errors.New("store is empty")
	// ErrUnavailable wraps every backend failure, including deadline expiry.
	ErrUnavailable = errors.New("store unavailable")

	ErrUnknownDriver = errors.New("unknown store driver")
	ErrRowWidth      = errors.New("row does not match canonical width")
	ErrMissingPath   = errors.New("store path is required")
	ErrMissingDSN    = errors.New("postgres dsn is required")
)
