package service

import (
	"errors"
	"fmt"

	"github.com/pedagolab/stepflow-api/internal/config"
	"github.com/pedagolab/stepflow-api/internal/models"
	"github.com/pedagolab/stepflow-api/pkg/ai"
)

// ErrProviderNotConfigured indicates no API key is available for the provider
// an activity asks for.
var ErrProviderNotConfigured = errors.New("ai provider not configured")

// ProviderResolver selects the chat adapter and model to use for an activity,
// honoring per-activity overrides before deployment defaults.
type ProviderResolver interface {
	Resolve(activity models.Activity) (ai.Provider, string, error)
}

// NewProviderResolver builds the config-backed resolver.
func NewProviderResolver(cfg config.Config) ProviderResolver {
	return &configProviderResolver{cfg: cfg}
}

type configProviderResolver struct {
	cfg config.Config
}

func (r *configProviderResolver) Resolve(activity models.Activity) (ai.Provider, string, error) {
	name := activity.AIProvider
	if name == "" {
		name = r.cfg.AIProvider
	}

	apiKey := r.cfg.ProviderAPIKey(name)
	if apiKey == "" {
		return nil, "", fmt.Errorf("%w: %s", ErrProviderNotConfigured, name)
	}

	provider, err := ai.New(name, apiKey, ai.Options{Timeout: r.cfg.AIRequestTimeout})
	if err != nil {
		return nil, "", err
	}

	model := activity.AIModel
	if model == "" {
		model = r.cfg.AIModel
	}
	if model == "" {
		model = provider.DefaultModel()
	}

	return provider, model, nil
}
