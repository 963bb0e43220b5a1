package notify

import (
	"context"
	"log"

	"ai-analysis-ops/internal/domain/ports/adapter"
)

var _ adapter.NotificationSink = (*NoopNotifier)(nil)

// NoopNotifier logs alerts instead of delivering them. For local/dev runs.
type NoopNotifier struct{}

func NewNoopNotifier() *NoopNotifier {
	return &NoopNotifier{}
}

func (n *NoopNotifier) Notify(_ context.Context, title, content string) (bool, error) {
	log.Printf("[noop-notify] %s\n%s\n", title, content)
	return true, nil
}
