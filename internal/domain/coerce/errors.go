package coerce

import "errors"

// Sentinel kinds for coercion configuration errors.
var (
	ErrUnknownPolicy = errors.New("unknown missing-data policy")
)
