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

// SubmissionHandler manages submission intake and retrieval endpoints.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes under the assignment scope. The limiter
// throttles the intake routes only; reads stay unthrottled.
func (h *SubmissionHandler) Register(router fiber.Router, limit fiber.Handler) {
	router.Post("/:id/submissions", limit, h.create)
	router.Post("/:id/submissions/file", limit, h.createFile)
	router.Get("/:id/submissions", h.list)
	router.Get("/:id/submissions/latest", h.latest)
}

// RegisterSubmissionRoutes attaches the id-addressed submission routes.
func (h *SubmissionHandler) RegisterSubmissionRoutes(router fiber.Router) {
	router.Get("/:id", h.get)
}

func (h *SubmissionHandler) create(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.SubmissionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	submission, err := h.service.Submit(c.Context(), actorFromContext(c), assignmentID, payload, c.Get("Idempotency-Key"))
	if err != nil {
		return h.handleError(c, err, "failed to create submission")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission accepted", submission)
}

func (h *SubmissionHandler) createFile(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	timeTaken := 0
	if raw := c.FormValue("time_taken_secs"); raw != "" {
		if parsed, err := parseFormInt(raw); err == nil {
			timeTaken = parsed
		}
	}

	submission, err := h.service.SubmitFile(c.Context(), actorFromContext(c), assignmentID, file, timeTaken, c.Get("Idempotency-Key"))
	if err != nil {
		return h.handleError(c, err, "failed to create submission")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission accepted", submission)
}

func (h *SubmissionHandler) list(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	filter := dto.SubmissionFilter{}
	if userID, err := parseQueryUint(c, "user_id"); err == nil && userID != nil {
		filter.UserID = userID
	}
	if status := c.Query("grading_status"); status != "" {
		filter.GradingStatus = &status
	}

	submissions, err := h.service.List(c.Context(), actorFromContext(c), assignmentID, filter)
	if err != nil {
		return h.handleError(c, err, "failed to list submissions")
	}

	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *SubmissionHandler) latest(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var userID uint
	if parsed, err := parseQueryUint(c, "user_id"); err == nil && parsed != nil {
		userID = *parsed
	}

	submission, err := h.service.GetLatest(c.Context(), actorFromContext(c), assignmentID, userID)
	if err != nil {
		return h.handleError(c, err, "failed to load submission")
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	submission, err := h.service.Get(c.Context(), actorFromContext(c), id)
	if err != nil {
		return h.handleError(c, err, "failed to load submission")
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, service.ErrAssignmentNotFound),
		errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrAttemptLimitReached):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrDeadlinePassed),
		errors.Is(err, service.ErrAssignmentInactive):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrFileTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrWrongSubmissionKind),
		errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrFileRequired),
		errors.Is(err, service.ErrFileTypeNotAllowed),
		isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, authz.ErrPermissionDenied):
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}
