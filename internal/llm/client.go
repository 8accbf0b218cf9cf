package llm

import "context"

// Client is the interface that all LLM providers must implement.
type Client interface {
	// Chat sends the conversation plus the tool catalog (OpenAI function
	// format) and returns one assistant message: either final text or a
	// set of tool calls.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any, opts Options) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
