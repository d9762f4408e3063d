package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/pedagolab/stepflow-api/internal/dto"
	"github.com/pedagolab/stepflow-api/internal/middleware"
	"github.com/pedagolab/stepflow-api/internal/service"
	"github.com/pedagolab/stepflow-api/internal/utils"
)

// SummaryHandler exposes the aggregate step summary endpoints.
type SummaryHandler struct {
	summaries service.SummaryService
	logger    zerolog.Logger
}

// NewSummaryHandler constructs the handler.
func NewSummaryHandler(summaries service.SummaryService, logger zerolog.Logger) *SummaryHandler {
	return &SummaryHandler{
		summaries: summaries,
		logger:    logger.With().Str("component", "summary_handler").Logger(),
	}
}

// Register attaches summary routes to the router group. The group itself is
// staff-gated; generation additionally rate-limits the provider fan-out.
func (h *SummaryHandler) Register(router fiber.Router) {
	router.Get("", h.Get)
	router.Post("/generate", middleware.RateLimit("summary-generate", 5, time.Minute), h.Generate)
}

func (h *SummaryHandler) Get(c *fiber.Ctx) error {
	activityID, err := parseQueryUint(c, "activity_id")
	if err != nil || activityID == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid activity_id")
	}
	step, err := parseQueryInt(c, "step")
	if err != nil || step == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid step")
	}

	status, err := h.summaries.Get(c.Context(), activityID, step)
	if err != nil {
		return h.handleError(c, err, "failed to fetch summary")
	}

	return utils.SendSuccess(c, "summary status retrieved", status)
}

func (h *SummaryHandler) Generate(c *fiber.Ctx) error {
	var payload dto.GenerateSummaryRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.summaries.Generate(c.Context(), payload.ActivityID, payload.Step, payload.Force)
	if err != nil {
		return h.handleError(c, err, "failed to generate summary")
	}

	if result.NotEnoughData {
		return utils.SendSuccess(c, "not enough evaluations for a summary", result)
	}
	return utils.SendSuccess(c, "summary generated", result)
}

func (h *SummaryHandler) handleError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, service.ErrActivityNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidStep), errors.Is(err, service.ErrAIDisabled):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}
