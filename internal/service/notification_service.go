package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openlearn/lms-api/internal/dto"
	"github.com/openlearn/lms-api/internal/models"
	"github.com/openlearn/lms-api/internal/observability"
	"github.com/openlearn/lms-api/internal/repository"
)

const notificationSubjectPrefix = "lms.notifications"

// ErrNotificationEmpty indicates the message had no content after sanitization.
var ErrNotificationEmpty = errors.New("notification message empty after sanitization")

// NotificationService persists user notifications and fans them out to the
// message broker for downstream consumers.
type NotificationService interface {
	Notify(ctx context.Context, userID uint, kind, title, message string) (dto.NotificationResponse, error)
	List(ctx context.Context, userID uint, limit, offset int) ([]dto.NotificationResponse, error)
	MarkRead(ctx context.Context, id, userID uint) (dto.NotificationResponse, error)
}

type notificationEvent struct {
	UserID       uint                     `json:"user_id"`
	Notification dto.NotificationResponse `json:"notification"`
	SentAt       time.Time                `json:"sent_at"`
}

type notificationService struct {
	repo      repository.NotificationRepository
	nats      *nats.Conn
	logger    zerolog.Logger
	tracer    trace.Tracer
	sanitizer *bluemonday.Policy
}

// NewNotificationService constructs a notification service. The NATS
// connection may be nil, in which case events stay local to the database.
func NewNotificationService(repo repository.NotificationRepository, natsConn *nats.Conn, logger zerolog.Logger) NotificationService {
	return &notificationService{
		repo:      repo,
		nats:      natsConn,
		logger:    logger.With().Str("component", "notification_service").Logger(),
		tracer:    otel.Tracer("github.com/openlearn/lms-api/internal/service/notification"),
		sanitizer: bluemonday.StrictPolicy(),
	}
}

func (s *notificationService) Notify(ctx context.Context, userID uint, kind, title, message string) (dto.NotificationResponse, error) {
	cleanMessage := strings.TrimSpace(s.sanitizer.Sanitize(message))
	if cleanMessage == "" {
		return dto.NotificationResponse{}, ErrNotificationEmpty
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.publish", trace.WithAttributes(
		attribute.Int64("notification.user_id", int64(userID)),
		attribute.String("notification.kind", kind),
	))
	defer span.End()

	model := models.Notification{
		UserID:  userID,
		Kind:    kind,
		Title:   strings.TrimSpace(s.sanitizer.Sanitize(title)),
		Message: cleanMessage,
	}

	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	response := dto.NewNotificationResponse(model)
	if err := s.publish(userID, response); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish notification to broker")
	}

	observability.NotificationsPublished().WithLabelValues(kind).Inc()

	return response, nil
}

func (s *notificationService) List(ctx context.Context, userID uint, limit, offset int) ([]dto.NotificationResponse, error) {
	if userID == 0 {
		return nil, errors.New("user id is required")
	}

	notifications, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	return dto.NewNotificationResponseSlice(notifications), nil
}

func (s *notificationService) MarkRead(ctx context.Context, id, userID uint) (dto.NotificationResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.Int64("notification.user_id", int64(userID)),
	))
	defer span.End()

	notification, err := s.repo.MarkRead(spanCtx, id, userID)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) publish(userID uint, notification dto.NotificationResponse) error {
	if s.nats == nil {
		return nil
	}

	event := notificationEvent{
		UserID:       userID,
		Notification: notification,
		SentAt:       time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return s.nats.Publish(notificationSubjectPrefix+"."+notification.Kind, payload)
}
