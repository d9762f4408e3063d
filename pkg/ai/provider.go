package ai

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnknownProvider indicates the requested provider name has no adapter.
var ErrUnknownProvider = errors.New("unknown ai provider")

// ErrMissingAPIKey indicates a provider was requested without credentials.
var ErrMissingAPIKey = errors.New("api key is required")

// Options tunes adapter construction. Zero values select sane defaults.
type Options struct {
	// BaseURL overrides the provider endpoint, mainly for tests.
	BaseURL string
	// HTTPClient overrides the transport used for outbound calls.
	HTTPClient *http.Client
	// Timeout bounds one request attempt end to end.
	Timeout time.Duration
	Logger  zerolog.Logger
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

type providerFactory func(apiKey string, opts Options) (Provider, error)

// providerFactories is the runtime lookup table keyed by provider name.
var providerFactories = map[string]providerFactory{
	"openai": func(apiKey string, opts Options) (Provider, error) {
		return newOpenAICompatible(compatibleConfig{
			name:         "openai",
			defaultModel: "gpt-4o-mini",
			lightModel:   "gpt-4o-mini",
			jsonMode:     true,
		}, apiKey, opts)
	},
	"mistral": func(apiKey string, opts Options) (Provider, error) {
		return newOpenAICompatible(compatibleConfig{
			name:         "mistral",
			baseURL:      "https://api.mistral.ai/v1",
			defaultModel: "mistral-large-latest",
			lightModel:   "mistral-small-latest",
			jsonMode:     true,
		}, apiKey, opts)
	},
	// Albert is the French state-hosted OpenAI-compatible service.
	"albert": func(apiKey string, opts Options) (Provider, error) {
		return newOpenAICompatible(compatibleConfig{
			name:         "albert",
			baseURL:      "https://albert.api.etalab.gouv.fr/v1",
			defaultModel: "albert-large",
			lightModel:   "albert-small",
		}, apiKey, opts)
	},
	"anthropic": newAnthropic,
}

// New builds the adapter registered under name. Adapters are stateless and
// cheap: construct one per call site with the API key in hand.
func New(name, apiKey string, opts Options) (Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	factory, ok := providerFactories[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return factory(apiKey, opts)
}

// Names lists the registered provider names in stable order.
func Names() []string {
	names := make([]string, 0, len(providerFactories))
	for name := range providerFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
