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

// EvaluationHandler exposes the evaluation job endpoints.
type EvaluationHandler struct {
	evaluations service.EvaluationService
	grades      service.GradeService
	logger      zerolog.Logger
}

// NewEvaluationHandler constructs the handler.
func NewEvaluationHandler(evaluations service.EvaluationService, grades service.GradeService, logger zerolog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		evaluations: evaluations,
		grades:      grades,
		logger:      logger.With().Str("component", "evaluation_handler").Logger(),
	}
}

// Register attaches evaluation routes to the router group. Polling the
// status only needs a valid token; everything that queues provider calls,
// deletes jobs, or applies grades goes behind staffOnly.
func (h *EvaluationHandler) Register(router fiber.Router, staffOnly fiber.Handler) {
	router.Get("", h.Status)
	router.Post("", staffOnly, h.Queue)
	router.Post("/bulk", staffOnly, middleware.RateLimit("bulk-reevaluate", 5, time.Minute), h.Bulk)
	router.Get("/:id", staffOnly, h.Get)
	router.Delete("/:id", staffOnly, h.Remove)
	router.Post("/:id/apply", staffOnly, h.Apply)
}

func (h *EvaluationHandler) Queue(c *fiber.Ctx) error {
	var payload dto.QueueEvaluationRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if payload.UserID == 0 {
		payload.UserID = userIDFromContext(c)
	}

	jobID, err := h.evaluations.Queue(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err, "failed to queue evaluation")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "evaluation queued", dto.QueueEvaluationResponse{JobID: jobID})
}

func (h *EvaluationHandler) Bulk(c *fiber.Ctx) error {
	var payload dto.BulkReevaluateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.evaluations.BulkReevaluate(c.Context(), payload.ActivityID, payload.Step)
	if err != nil {
		return h.handleError(c, err, "failed to re-evaluate step")
	}

	return utils.SendSuccess(c, "re-evaluation queued", result)
}

// Status answers the polling clients: a missing job yields has_evaluation=false
// with a 200, not a 404.
func (h *EvaluationHandler) Status(c *fiber.Ctx) error {
	activityID, err := parseQueryUint(c, "activity_id")
	if err != nil || activityID == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid activity_id")
	}
	step, err := parseQueryInt(c, "step")
	if err != nil || step == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid step")
	}
	submissionID, err := parseQueryUint(c, "submission_id")
	if err != nil || submissionID == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid submission_id")
	}

	job, err := h.evaluations.Get(c.Context(), activityID, step, submissionID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return utils.SendSuccess(c, "no evaluation yet", dto.EvaluationStatusResponse{HasEvaluation: false})
		}
		return h.handleError(c, err, "failed to fetch evaluation status")
	}

	response := dto.NewEvaluationJobResponse(job, service.StatusDisplay(job), staffRole(userRoleFromContext(c)))
	return utils.SendSuccess(c, "evaluation status retrieved", dto.EvaluationStatusResponse{HasEvaluation: true, Job: &response})
}

func (h *EvaluationHandler) Get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	job, err := h.evaluations.GetByID(c.Context(), id)
	if err != nil {
		return h.handleError(c, err, "failed to fetch evaluation")
	}

	response := dto.NewEvaluationJobResponse(job, service.StatusDisplay(job), staffRole(userRoleFromContext(c)))
	return utils.SendSuccess(c, "evaluation retrieved", response)
}

func (h *EvaluationHandler) Remove(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	if err := h.evaluations.Delete(c.Context(), id); err != nil {
		return h.handleError(c, err, "failed to delete evaluation")
	}

	return utils.SendSuccess(c, "evaluation deleted", nil)
}

func (h *EvaluationHandler) Apply(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	payload := dto.ApplyGradeRequest{}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}
	}

	if err := h.grades.ApplyAIGrade(c.Context(), id, userIDFromContext(c), payload.Flags); err != nil {
		return h.handleError(c, err, "failed to apply grade")
	}

	job, err := h.evaluations.GetByID(c.Context(), id)
	if err != nil {
		return h.handleError(c, err, "failed to fetch evaluation")
	}

	response := dto.NewEvaluationJobResponse(job, service.StatusDisplay(job), true)
	return utils.SendSuccess(c, "grade applied", response)
}

func (h *EvaluationHandler) handleError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, service.ErrActivityNotFound),
		errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, service.ErrJobNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidStep),
		errors.Is(err, service.ErrAIDisabled):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidJobState),
		errors.Is(err, service.ErrJobNotGraded):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}
