package config

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")

	ErrEmptyValue    = errors.New("must not be empty")
	ErrNotPositive   = errors.New("must be positive")
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrUnknownEntity = errors.New("unknown entity key")
	ErrUnknownFamily = errors.New("unknown task family")
	ErrUnknownFormat = errors.New("unknown log format")
)

func wrapInvalid(key string, err error, value ...string) error {
	if len(value) > 0 {
		return fmt.Errorf("%w: %s %q: %w", ErrInvalidConfig, key, value[0], err)
	}
	return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
}

func wrapLoad(source string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrLoadConfig, source, err)
}
