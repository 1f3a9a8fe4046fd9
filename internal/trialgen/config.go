// Package trialgen generates synthetic trial telemetry, submits it to a
// running trialstats service and checks the resulting aggregate.
package trialgen

import "time"

// Config holds configuration for a generation run.
type Config struct {
	BaseURL        string        // Base URL of the service
	Users          int           // Number of synthetic participants
	TrialsPerLevel int           // Trials per participant per level
	Workers        int           // Number of concurrent uploaders
	Timeout        time.Duration // HTTP request timeout
	Seed           uint64        // Seed for the trial generator; 0 picks one
	MissingRate    float64       // Share of trials with a non-numeric metric
	OutputFile     string        // Output file for generated trials
	Verbose        bool          // Enable per-upload logging
}

// Trial is one upload body plus the idempotency key it is sent with.
type Trial struct {
	Key    string         `json:"key"`
	Fields map[string]any `json:"fields"`
}

// UploadResponse is the body returned by POST /upload.
type UploadResponse struct {
	Status       string   `json:"status"`
	Message      string   `json:"message"`
	MirrorErrors []string `json:"mirror_errors,omitempty"`
}

// Stats holds run statistics.
type Stats struct {
	TrialsGenerated int
	Submitted       int
	Stored          int
	Partial         int
	Duplicate       int
	Failed          int
	Families        int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
