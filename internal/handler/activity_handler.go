package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/openlearn/lms-api/internal/dto"
	"github.com/openlearn/lms-api/internal/service"
	"github.com/openlearn/lms-api/internal/utils"
)

// ActivityHandler exposes the audit trail to staff.
type ActivityHandler struct {
	service service.ActivityService
	logger  zerolog.Logger
}

// NewActivityHandler constructs the handler.
func NewActivityHandler(service service.ActivityService, logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		service: service,
		logger:  logger.With().Str("component", "activity_handler").Logger(),
	}
}

// Register attaches the audit trail endpoints to the router group.
func (h *ActivityHandler) Register(router fiber.Router) {
	router.Get("", h.list)
}

func (h *ActivityHandler) list(c *fiber.Ctx) error {
	req := dto.ActivityListRequest{
		Action:     c.Query("action"),
		EntityType: c.Query("entity_type"),
	}
	if page, err := parseQueryInt(c, "page"); err == nil {
		req.Page = page
	}
	if pageSize, err := parseQueryInt(c, "page_size"); err == nil {
		req.PageSize = pageSize
	}
	if actorID, err := parseQueryUint(c, "actor_id"); err == nil && actorID != nil {
		req.ActorID = *actorID
	}

	entries, err := h.service.List(c.Context(), req)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list activity log")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list activity log")
	}

	return utils.OK(c, entries.Items, "activity retrieved", entries.Pagination)
}
