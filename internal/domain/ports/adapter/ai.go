package adapter

import "context"

// Message is one chat turn sent to the LLM service.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for one completion call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// AIServiceAdapter is the upstream LLM dependency the circuit breaker
// protects. Complete returns the generated content and token usage.
type AIServiceAdapter interface {
	Complete(ctx context.Context, messages []Message) (string, Usage, error)
	CountTokens(ctx context.Context, messages []Message) (int, error)
}
