package finflow

import "errors"

// Entity errors
var (
	// ErrNotFound indicates no entity exists for the given business key
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists indicates an entity with the same business key already exists
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidTransition indicates the requested status change is not
	// permitted from the entity's current status
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrValidation indicates malformed or inconsistent input
	ErrValidation = errors.New("validation failed")
)

// Lock errors
var (
	// ErrLockTimeout indicates the lock could not be acquired within the wait budget
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrLockNotHeld indicates the lock is not held by this handle
	ErrLockNotHeld = errors.New("lock not held")

	// ErrLockExtensionFailed indicates lock extension failed
	ErrLockExtensionFailed = errors.New("lock extension failed")

	// ErrLockReleaseFailed indicates lock release failed
	ErrLockReleaseFailed = errors.New("lock release failed")
)

// Gateway errors
var (
	// ErrGateway indicates the payment processor declined or failed the operation
	ErrGateway = errors.New("gateway operation failed")

	// ErrCircuitOpen indicates the circuit breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// Batch errors
var (
	// ErrJobNotFound indicates the batch job does not exist
	ErrJobNotFound = errors.New("batch job not found")

	// ErrJobCompleted indicates a result was recorded against a finished job
	ErrJobCompleted = errors.New("batch job already completed")
)

// Store errors
var (
	// ErrVersionConflict indicates optimistic lock version conflict
	ErrVersionConflict = errors.New("version conflict")

	// ErrStoreOperationFailed indicates a store operation failed
	ErrStoreOperationFailed = errors.New("store operation failed")
)

// Idempotency errors
var (
	// ErrIdempotencyCheckFailed indicates idempotency check failed
	ErrIdempotencyCheckFailed = errors.New("idempotency check failed")
)

// Config errors
var (
	// ErrInvalidConfig indicates the configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")
)
