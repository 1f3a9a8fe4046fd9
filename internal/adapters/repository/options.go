package repository

import "time"

// Default store locations and limits.
const (
	DefaultCSVPath    = "data/telemetry.csv"
	DefaultSQLitePath = "data/telemetry.db"
	DefaultTimeout    = 5 * time.Second
)

type settings struct {
	path    string
	dsn     string
	timeout time.Duration
}

// Option applies a configuration option to Open.
type Option func(*settings)

// WithPath sets the file location used by the csv and sqlite drivers.
func WithPath(path string) Option {
	return func(s *settings) {
		if path != "" {
			s.path = path
		}
	}
}

// WithDSN sets the connection string used by the postgres driver.
func WithDSN(dsn string) Option {
	return func(s *settings) {
		s.dsn = dsn
	}
}

// WithTimeout bounds every Append and ReadAll call.
func WithTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}
