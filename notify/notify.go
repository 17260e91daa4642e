// Package notify provides fire-and-forget customer notification dispatch.
// Delivery failures are logged and never propagated to the calling
// operation.
package notify

import (
	"context"
	"log"
)

// Notifier dispatches a notification to a customer.
type Notifier interface {
	// Notify sends the payload to the customer. Implementations should
	// honor ctx cancellation; callers treat errors as advisory.
	Notify(ctx context.Context, customerID string, payload map[string]any) error
}

// Logger is the minimal logging interface the dispatcher needs.
type Logger interface {
	Printf(format string, v ...any)
}

// defaultLogger uses the standard log package.
type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...any) {
	log.Printf(format, v...)
}

// LogNotifier writes notifications to the log. Stands in for a mail or
// messaging integration.
type LogNotifier struct {
	logger Logger
}

// LogNotifierOption configures a LogNotifier.
type LogNotifierOption func(*LogNotifier)

// WithLogger sets a custom logger.
func WithLogger(logger Logger) LogNotifierOption {
	return func(n *LogNotifier) {
		n.logger = logger
	}
}

// NewLogNotifier creates a notifier that logs each dispatch.
func NewLogNotifier(opts ...LogNotifierOption) *LogNotifier {
	n := &LogNotifier{
		logger: &defaultLogger{},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify logs the notification.
func (n *LogNotifier) Notify(ctx context.Context, customerID string, payload map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.logger.Printf("[Notify] customer=%s payload=%v", customerID, payload)
	return nil
}

// NoOpNotifier discards all notifications.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a notifier that does nothing.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Notify does nothing.
func (n *NoOpNotifier) Notify(ctx context.Context, customerID string, payload map[string]any) error {
	return nil
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*NoOpNotifier)(nil)
)
