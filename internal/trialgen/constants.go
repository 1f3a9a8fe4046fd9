package trialgen

import "time"

// Upload outcomes.
const (
	outcomeStored    = "stored"
	outcomePartial   = "partial"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	ProgressInterval     = time.Second
	PercentageMultiplier = 100
)

// idempotencyHeader matches the header the upload endpoint reads.
const idempotencyHeader = "Idempotency-Key"
