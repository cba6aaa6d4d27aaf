package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pushrelay/pushrelay/internal/models"
	apperrors "github.com/pushrelay/pushrelay/pkg/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	Title      string
	Message    string
	Type       string
	UserID     *int64
	UserGroup  *string
	ImageURL   string
	ActionText string
	ActionURL  string
	Metadata   map[string]any
}

// NotificationService is the durable store for notification records. It maps
// inputs to rows and back; dispatch semantics live in the Dispatcher.
type NotificationService struct {
	db *gorm.DB
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(db *gorm.DB) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{db: db}, nil
}

// Create persists a new notification and returns the stored record with its
// generated id.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	notification := models.Notification{
		Title:      strings.TrimSpace(input.Title),
		Message:    strings.TrimSpace(input.Message),
		Type:       strings.TrimSpace(input.Type),
		UserID:     input.UserID,
		UserGroup:  input.UserGroup,
		ImageURL:   strings.TrimSpace(input.ImageURL),
		ActionText: strings.TrimSpace(input.ActionText),
		ActionURL:  strings.TrimSpace(input.ActionURL),
	}
	if notification.Type == "" {
		notification.Type = models.TypeInfo
	}

	if input.Metadata != nil {
		data, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("notification service: marshal metadata: %w", err)
		}
		notification.Metadata = datatypes.JSON(data)
	}

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}

	return &notification, nil
}

// GetByID loads a single notification.
func (s *NotificationService) GetByID(ctx context.Context, id int64) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	var notification models.Notification
	if err := s.db.WithContext(ctx).First(&notification, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}
	return &notification, nil
}

// ListForUser returns the user's notifications ordered by recency. The limit
// defaults to 50 and is capped at 100.
func (s *NotificationService) ListForUser(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	ctx = ensureContext(ctx)

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var rows []models.Notification
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: list notifications: %w", err)
	}

	return rows, nil
}

// MarkRead flips the read flag for a notification owned by the supplied user.
// It reports false without error when zero rows were affected, which covers
// both an unknown id and a notification owned by someone else: ownership
// scoping happens in the WHERE clause, never in caller-visible errors.
// Repeated calls keep the first read timestamp, and reading implies delivered.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID int64) (bool, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()

	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{
			"is_read":      true,
			"read_at":      gorm.Expr("COALESCE(read_at, ?)", now),
			"is_delivered": true,
			"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", now),
		})
	if result.Error != nil {
		return false, fmt.Errorf("notification service: mark read: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// MarkDelivered records that the fan-out attempt for the notification
// completed. Delivered means attempted, not acknowledged.
func (s *NotificationService) MarkDelivered(ctx context.Context, id int64) error {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()

	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_delivered": true,
			"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", now),
		})
	if result.Error != nil {
		return fmt.Errorf("notification service: mark delivered: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
