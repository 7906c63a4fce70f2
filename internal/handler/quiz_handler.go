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

// QuizHandler manages quiz taking endpoints under the assignment scope.
type QuizHandler struct {
	service service.QuizService
	logger  zerolog.Logger
}

// NewQuizHandler builds a quiz handler instance.
func NewQuizHandler(service service.QuizService, logger zerolog.Logger) *QuizHandler {
	return &QuizHandler{
		service: service,
		logger:  logger.With().Str("component", "quiz_handler").Logger(),
	}
}

// Register attaches the routes under the assignment scope. The limiter
// throttles the intake routes only; reads stay unthrottled.
func (h *QuizHandler) Register(router fiber.Router, limit fiber.Handler) {
	router.Post("/:id/quiz/start", limit, h.start)
	router.Post("/:id/quiz/submit", limit, h.submit)
	router.Get("/:id/quiz/result", h.latestResult)
}

// RegisterResultRoutes attaches the id-addressed quiz result routes.
func (h *QuizHandler) RegisterResultRoutes(router fiber.Router) {
	router.Get("/:id", h.result)
}

func (h *QuizHandler) start(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	started, err := h.service.Start(c.Context(), actorFromContext(c), assignmentID)
	if err != nil {
		return h.handleError(c, err, "failed to start quiz")
	}

	return utils.SendSuccess(c, "quiz started", started)
}

func (h *QuizHandler) submit(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.QuizSubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.Submit(c.Context(), actorFromContext(c), assignmentID, payload)
	if err != nil {
		return h.handleError(c, err, "failed to submit quiz")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "quiz submitted", result)
}

func (h *QuizHandler) latestResult(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var userID uint
	if parsed, err := parseQueryUint(c, "user_id"); err == nil && parsed != nil {
		userID = *parsed
	}

	result, err := h.service.GetLatestResult(c.Context(), actorFromContext(c), assignmentID, userID)
	if err != nil {
		return h.handleError(c, err, "failed to load quiz result")
	}

	return utils.SendSuccess(c, "quiz result retrieved", result)
}

func (h *QuizHandler) result(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	result, err := h.service.GetResult(c.Context(), actorFromContext(c), id)
	if err != nil {
		return h.handleError(c, err, "failed to load quiz result")
	}

	return utils.SendSuccess(c, "quiz result retrieved", result)
}

func (h *QuizHandler) handleError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, service.ErrAssignmentNotFound),
		errors.Is(err, service.ErrQuizNotFound),
		errors.Is(err, service.ErrQuizResultNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrAttemptLimitReached):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrDeadlinePassed),
		errors.Is(err, service.ErrAssignmentInactive),
		errors.Is(err, service.ErrQuizTimeExpired):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, authz.ErrPermissionDenied):
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}
