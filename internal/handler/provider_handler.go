package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/pedagolab/stepflow-api/internal/dto"
	"github.com/pedagolab/stepflow-api/internal/service"
	"github.com/pedagolab/stepflow-api/internal/utils"
	"github.com/pedagolab/stepflow-api/pkg/ai"
)

// ProviderHandler exposes provider discovery and connectivity checks.
type ProviderHandler struct {
	evaluations service.EvaluationService
	logger      zerolog.Logger
}

// NewProviderHandler constructs the handler.
func NewProviderHandler(evaluations service.EvaluationService, logger zerolog.Logger) *ProviderHandler {
	return &ProviderHandler{
		evaluations: evaluations,
		logger:      logger.With().Str("component", "provider_handler").Logger(),
	}
}

// Register attaches provider routes to the router group.
func (h *ProviderHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("/test", h.test)
}

func (h *ProviderHandler) list(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "providers retrieved", ai.Names())
}

// test performs a minimal round trip against the provider before the key is
// saved; failure details go back to the caller rather than a 500.
func (h *ProviderHandler) test(c *fiber.Ctx) error {
	var payload dto.TestProviderRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	if err := h.evaluations.TestProvider(c.Context(), payload.Provider, payload.APIKey); err != nil {
		switch {
		case errors.Is(err, ai.ErrUnknownProvider), errors.Is(err, ai.ErrMissingAPIKey), isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		default:
			requestLogger(h.logger, c).Warn().Err(err).Str("provider", payload.Provider).Msg("provider connection test failed")
			return utils.SendSuccess(c, "provider test completed", dto.TestProviderResponse{Success: false, Message: err.Error()})
		}
	}

	return utils.SendSuccess(c, "provider test completed", dto.TestProviderResponse{Success: true, Message: "connection established"})
}
