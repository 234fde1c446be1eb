package usecase

import "time"

const (
	// DefaultLockTimeout bounds how long a movement waits for its accounts.
	DefaultLockTimeout = 5 * time.Second

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// IdempotencyProcessing is stored under a key while its request is in flight.
	IdempotencyProcessing = "processing"

	// DefaultTransactionCacheTTL is how long recorded transactions stay cached.
	// Records are immutable so the TTL only bounds memory use.
	DefaultTransactionCacheTTL = time.Hour
)

// Movement outcomes reported to LedgerMetrics.
const (
	OutcomeSuccess           = "success"
	OutcomeValidationError   = "validation_error"
	OutcomeNotFound          = "not_found"
	OutcomeInsufficientFunds = "insufficient_funds"
	OutcomeBusy              = "busy"
	OutcomeDuplicate         = "duplicate"
	OutcomeStoreError        = "store_error"
	OutcomeCanceled          = "canceled"
)
