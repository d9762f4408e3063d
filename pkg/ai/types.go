package ai

import "context"

// ChatRequest is a single system+user exchange sent to a chat-completion
// backend.
type ChatRequest struct {
	System    string
	User      string
	Model     string
	MaxTokens int
}

// ChatResponse is the normalized backend answer. Token counts default to zero
// when the provider omits usage data.
type ChatResponse struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Provider presents one AI backend as a uniform chat-completion capability.
// Implementations are stateless; retry and auth-error classification live
// behind Chat.
type Provider interface {
	Name() string
	DefaultModel() string
	LightModel() string
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// EstimateTokens approximates the token count of a text as ceil(len/4).
// Pre-flight budget checks only, not billing accuracy.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

// TestConnection sends a minimal prompt to the provider's lightest model and
// reports reachability. No side effects beyond the single outbound call.
func TestConnection(ctx context.Context, p Provider) error {
	_, err := p.Chat(ctx, ChatRequest{
		User:      "Hello",
		Model:     p.LightModel(),
		MaxTokens: 10,
	})
	return err
}
