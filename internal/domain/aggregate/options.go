package aggregate

import (
	"github.com/okian/trialstats/internal/domain/classify"
	"github.com/okian/trialstats/internal/domain/coerce"
	"github.com/okian/trialstats/internal/domain/model"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithEntity sets the grouping column. Only user_id and device_type are
// accepted; other values are ignored.
func WithEntity(field string) Option {
	return func(e *Engine) {
		if field == model.UserID || field == model.DeviceType {
			e.entity = field
		}
	}
}

// WithDefaultPolicy sets the missing-data policy for families without an override.
func WithDefaultPolicy(p coerce.Policy) Option {
	return func(e *Engine) {
		if p != "" {
			e.defaultPolicy = p
		}
	}
}

// WithPolicy overrides the missing-data policy of one family.
func WithPolicy(f classify.Family, p coerce.Policy) Option {
	return func(e *Engine) {
		if p != "" {
			e.policies[f] = p
		}
	}
}
