package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ai-analysis-ops/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter implements adapter.AIServiceAdapter for local/dev
// testing. It fabricates deterministic content instead of calling a
// real model.
type NoopAIAdapter struct{}

func NewNoopAIAdapter() *NoopAIAdapter {
	return &NoopAIAdapter{}
}

func (a *NoopAIAdapter) Complete(ctx context.Context, messages []adapter.Message) (string, adapter.Usage, error) {
	// Simulate slight processing time and respect ctx.
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return "", adapter.Usage{}, ctx.Err()
	}
	var last string
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}
	content := fmt.Sprintf("[noop-ai] generated response for: %.80s", last)
	n := len(strings.Fields(last))
	return content, adapter.Usage{PromptTokens: n, CompletionTokens: 20, TotalTokens: n + 20}, nil
}

func (a *NoopAIAdapter) CountTokens(_ context.Context, messages []adapter.Message) (int, error) {
	total := 0
	for _, m := range messages {
		total += len(strings.Fields(m.Content))
	}
	return total, nil
}
