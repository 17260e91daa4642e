// Package idempotency provides duplicate-delivery detection for the finflow
// engine. Gateway confirmations can be delivered more than once; a checker
// keyed by gateway reference turns the second delivery into a cached no-op
// instead of a repeated mutation.
package idempotency

import (
	"context"
	"time"
)

// Checker defines the interface for idempotency checking.
type Checker interface {
	// Check checks if an operation was already executed.
	// Returns:
	//   - exists: true if the operation was already executed
	//   - result: the cached result of the operation (if exists is true)
	//   - err: any error that occurred during the check
	Check(ctx context.Context, key string) (exists bool, result []byte, err error)

	// Mark marks an operation as executed with its result.
	// The result will be stored with the given TTL.
	Mark(ctx context.Context, key string, result []byte, ttl time.Duration) error
}

// ConfirmationKey builds the idempotency key for a gateway confirmation,
// scoped by entity kind so a charge and a refund sharing a reference never
// collide.
func ConfirmationKey(kind, gatewayReference string) string {
	return "confirm:" + kind + ":" + gatewayReference
}
