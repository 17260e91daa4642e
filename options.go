package finflow

import (
	"time"

	"finflow/circuit"
)

// Config holds the configuration for the lifecycle engine.
type Config struct {
	// Lock configuration
	LockTTL           time.Duration // Lock timeout, default 30s
	LockWait          time.Duration // Maximum time to wait for a lock, default 5s
	LockRetryInterval time.Duration // Poll interval while waiting for a lock, default 50ms
	LockExtendPeriod  time.Duration // Lock extension interval, default 10s

	// Gateway configuration
	GatewaySuccessRate int           // Simulated success percentage (0-100), default 95
	GatewayLatency     time.Duration // Simulated processing latency, default 50ms

	// Circuit breaker configuration
	CircuitThreshold    int           // Circuit breaker threshold, default 5
	CircuitTimeout      time.Duration // Circuit breaker recovery time, default 30s
	CircuitHalfOpenReqs int           // Half-open state max requests, default 3

	// Batch configuration
	BatchWorkers int // Worker goroutines per batch run, default 8

	// Background task configuration
	SweepInterval    time.Duration // Background sweep interval, default 1min
	OverdueGraceDays int           // Days past due before an invoice is flagged, default 0
	ReconcileWindow  time.Duration // Age of unreconciled payments to pick up, default 24h

	// Notification configuration
	NotifyTimeout time.Duration // Per-notification send budget, default 5s

	// Idempotency configuration
	IdempotencyTTL time.Duration // Idempotency record TTL, default 24h
}

// DefaultConfig returns the default configuration for the engine.
func DefaultConfig() Config {
	return Config{
		LockTTL:             30 * time.Second,
		LockWait:            5 * time.Second,
		LockRetryInterval:   50 * time.Millisecond,
		LockExtendPeriod:    10 * time.Second,
		GatewaySuccessRate:  95,
		GatewayLatency:      50 * time.Millisecond,
		CircuitThreshold:    5,
		CircuitTimeout:      30 * time.Second,
		CircuitHalfOpenReqs: 3,
		BatchWorkers:        8,
		SweepInterval:       1 * time.Minute,
		OverdueGraceDays:    0,
		ReconcileWindow:     24 * time.Hour,
		NotifyTimeout:       5 * time.Second,
		IdempotencyTTL:      24 * time.Hour,
	}
}

// Option is a function that modifies the Config.
type Option func(*Config)

// WithLockTTL sets the lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.LockTTL = ttl
	}
}

// WithLockWait sets the maximum time to wait for a lock.
func WithLockWait(wait time.Duration) Option {
	return func(c *Config) {
		c.LockWait = wait
	}
}

// WithLockRetryInterval sets the poll interval while waiting for a lock.
func WithLockRetryInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.LockRetryInterval = interval
	}
}

// WithLockExtendPeriod sets the lock extension period.
func WithLockExtendPeriod(period time.Duration) Option {
	return func(c *Config) {
		c.LockExtendPeriod = period
	}
}

// WithGatewaySuccessRate sets the simulated gateway success percentage.
func WithGatewaySuccessRate(rate int) Option {
	return func(c *Config) {
		c.GatewaySuccessRate = rate
	}
}

// WithGatewayLatency sets the simulated gateway latency.
func WithGatewayLatency(latency time.Duration) Option {
	return func(c *Config) {
		c.GatewayLatency = latency
	}
}

// WithCircuitThreshold sets the circuit breaker failure threshold.
func WithCircuitThreshold(threshold int) Option {
	return func(c *Config) {
		c.CircuitThreshold = threshold
	}
}

// WithCircuitTimeout sets the circuit breaker recovery timeout.
func WithCircuitTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.CircuitTimeout = timeout
	}
}

// WithCircuitHalfOpenReqs sets the maximum requests in half-open state.
func WithCircuitHalfOpenReqs(reqs int) Option {
	return func(c *Config) {
		c.CircuitHalfOpenReqs = reqs
	}
}

// WithBatchWorkers sets the worker count for batch runs.
func WithBatchWorkers(workers int) Option {
	return func(c *Config) {
		c.BatchWorkers = workers
	}
}

// WithSweepInterval sets the background sweep interval.
func WithSweepInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.SweepInterval = interval
	}
}

// WithOverdueGraceDays sets the grace period before invoices go overdue.
func WithOverdueGraceDays(days int) Option {
	return func(c *Config) {
		c.OverdueGraceDays = days
	}
}

// WithReconcileWindow sets the age of unreconciled payments to pick up.
func WithReconcileWindow(window time.Duration) Option {
	return func(c *Config) {
		c.ReconcileWindow = window
	}
}

// WithNotifyTimeout sets the per-notification send budget.
func WithNotifyTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.NotifyTimeout = timeout
	}
}

// WithIdempotencyTTL sets the idempotency record TTL.
func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.IdempotencyTTL = ttl
	}
}

// WithConfig applies a complete Config, overriding all values.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// ApplyOptions applies the given options to a default config and returns the result.
func ApplyOptions(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// ToBreakerConfig converts the circuit breaker settings to a BreakerConfig.
func (c *Config) ToBreakerConfig() circuit.BreakerConfig {
	return circuit.BreakerConfig{
		Threshold:       c.CircuitThreshold,
		Timeout:         c.CircuitTimeout,
		HalfOpenMaxReqs: c.CircuitHalfOpenReqs,
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.LockTTL <= 0 {
		return ErrInvalidConfig
	}
	if c.LockWait <= 0 {
		return ErrInvalidConfig
	}
	if c.LockRetryInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.LockExtendPeriod <= 0 {
		return ErrInvalidConfig
	}
	if c.LockExtendPeriod >= c.LockTTL {
		return ErrInvalidConfig
	}
	if c.GatewaySuccessRate < 0 || c.GatewaySuccessRate > 100 {
		return ErrInvalidConfig
	}
	if c.GatewayLatency < 0 {
		return ErrInvalidConfig
	}
	if c.CircuitThreshold <= 0 {
		return ErrInvalidConfig
	}
	if c.CircuitTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.CircuitHalfOpenReqs <= 0 {
		return ErrInvalidConfig
	}
	if c.BatchWorkers <= 0 {
		return ErrInvalidConfig
	}
	if c.SweepInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.OverdueGraceDays < 0 {
		return ErrInvalidConfig
	}
	if c.ReconcileWindow <= 0 {
		return ErrInvalidConfig
	}
	if c.NotifyTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.IdempotencyTTL <= 0 {
		return ErrInvalidConfig
	}
	return nil
}
