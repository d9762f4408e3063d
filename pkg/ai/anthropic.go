package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// anthropicProvider speaks the Anthropic Messages API directly: the system
// prompt travels in a dedicated field instead of the message array, auth uses
// x-api-key plus a version header, and usage reports input/output tokens.
type anthropicProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	sleep   sleepFunc
}

func newAnthropic(apiKey string, opts Options) (Provider, error) {
	baseURL := anthropicBaseURL
	if opts.BaseURL != "" {
		baseURL = strings.TrimSuffix(opts.BaseURL, "/")
	}

	return &anthropicProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  opts.httpClient(),
		sleep:   contextSleep,
	}, nil
}

func (p *anthropicProvider) Name() string         { return "anthropic" }
func (p *anthropicProvider) DefaultModel() string { return "claude-3-5-sonnet-latest" }
func (p *anthropicProvider) LightModel() string   { return "claude-3-5-haiku-latest" }

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends one Messages API request, retrying per the shared backoff policy.
func (p *anthropicProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.DefaultModel()
	}

	start := time.Now()
	resp, err := withRetry(ctx, p.sleep, func(ctx context.Context) (ChatResponse, error) {
		return p.send(ctx, req, model)
	})
	chatDuration.WithLabelValues(p.Name(), model).Observe(time.Since(start).Seconds())
	if err != nil {
		chatFailures.WithLabelValues(p.Name(), model).Inc()
	}
	return resp, err
}

func (p *anthropicProvider) send(ctx context.Context, req ChatRequest, model string) (ChatResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	payload := anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  []anthropicMessage{{Role: "user", Content: req.User}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("encode anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("build anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return ChatResponse{}, &ProviderError{Provider: p.Name(), Message: err.Error()}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return ChatResponse{}, &ProviderError{Provider: p.Name(), StatusCode: httpResp.StatusCode, Message: err.Error()}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		message := strings.TrimSpace(string(raw))
		var errBody anthropicErrorBody
		if unmarshalErr := json.Unmarshal(raw, &errBody); unmarshalErr == nil && errBody.Error.Message != "" {
			message = errBody.Error.Message
		}
		return ChatResponse{}, &ProviderError{Provider: p.Name(), StatusCode: httpResp.StatusCode, Message: message}
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ChatResponse{}, &ProviderError{Provider: p.Name(), StatusCode: httpResp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}

	var content strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "" || block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return ChatResponse{
		Content:          strings.TrimSpace(content.String()),
		PromptTokens:     parsed.Usage.InputTokens,
		CompletionTokens: parsed.Usage.OutputTokens,
	}, nil
}
