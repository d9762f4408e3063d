package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// compatibleConfig describes one OpenAI-compatible backend: OpenAI itself,
// Mistral's platform, and the Albert government service all speak the same
// chat-completion dialect and differ only in endpoint, auth key, and models.
type compatibleConfig struct {
	name         string
	baseURL      string
	defaultModel string
	lightModel   string
	jsonMode     bool
}

type openAICompatible struct {
	cfg    compatibleConfig
	client *openai.Client
	sleep  sleepFunc
}

func newOpenAICompatible(cfg compatibleConfig, apiKey string, opts Options) (Provider, error) {
	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.baseURL != "" {
		clientConfig.BaseURL = cfg.baseURL
	}
	if opts.BaseURL != "" {
		clientConfig.BaseURL = opts.BaseURL
	}
	clientConfig.HTTPClient = opts.httpClient()

	return &openAICompatible{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientConfig),
		sleep:  contextSleep,
	}, nil
}

func (p *openAICompatible) Name() string         { return p.cfg.name }
func (p *openAICompatible) DefaultModel() string { return p.cfg.defaultModel }
func (p *openAICompatible) LightModel() string   { return p.cfg.lightModel }

// Chat sends one completion request, retrying per the shared backoff policy.
func (p *openAICompatible) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.defaultModel
	}

	start := time.Now()
	resp, err := withRetry(ctx, p.sleep, func(ctx context.Context) (ChatResponse, error) {
		return p.complete(ctx, req, model)
	})
	chatDuration.WithLabelValues(p.cfg.name, model).Observe(time.Since(start).Seconds())
	if err != nil {
		chatFailures.WithLabelValues(p.cfg.name, model).Inc()
	}
	return resp, err
}

func (p *openAICompatible) complete(ctx context.Context, req ChatRequest, model string) (ChatResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.User,
	})

	request := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: req.MaxTokens,
		Messages:  messages,
	}
	if p.cfg.jsonMode {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return ChatResponse{}, p.wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return ChatResponse{}, &ProviderError{Provider: p.cfg.name, Message: "no choices returned"}
	}

	return ChatResponse{
		Content:          strings.TrimSpace(resp.Choices[0].Message.Content),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (p *openAICompatible) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: p.cfg.name, StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Provider: p.cfg.name, StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return &ProviderError{Provider: p.cfg.name, Message: err.Error()}
}
