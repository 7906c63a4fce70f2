package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/openlearn/lms-api/internal/authz"
	"github.com/openlearn/lms-api/internal/dto"
	"github.com/openlearn/lms-api/internal/service"
	"github.com/openlearn/lms-api/internal/utils"
)

// GradingHandler wires manual grading endpoints for teachers and admins.
type GradingHandler struct {
	service service.GradingService
	logger  zerolog.Logger
}

// NewGradingHandler constructs the handler.
func NewGradingHandler(service service.GradingService, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		service: service,
		logger:  logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches grading endpoints to the submission router group.
func (h *GradingHandler) Register(router fiber.Router) {
	router.Patch("/:id/grade", h.grade)
	router.Get("/:id/feedback-suggestion", h.suggestFeedback)
}

func (h *GradingHandler) grade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.GradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	submission, err := h.service.Grade(c.Context(), actorFromContext(c), id, payload)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSubmissionNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "submission not found")
		case errors.Is(err, service.ErrScoreExceedsMax), isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, authz.ErrPermissionDenied):
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		default:
			requestLogger(h.logger, c).Error().Err(err).Uint("submission_id", id).Msg("failed to grade submission")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to grade submission")
		}
	}

	return utils.SendSuccess(c, "submission graded", submission)
}

func (h *GradingHandler) suggestFeedback(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	suggestion, err := h.service.SuggestFeedback(c.Context(), actorFromContext(c), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSubmissionNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "submission not found")
		case errors.Is(err, service.ErrReviewerUnavailable):
			return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
		case errors.Is(err, authz.ErrPermissionDenied):
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		default:
			requestLogger(h.logger, c).Error().Err(err).Uint("submission_id", id).Msg("failed to draft feedback")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to draft feedback")
		}
	}

	return utils.SendSuccess(c, "feedback drafted", suggestion)
}
