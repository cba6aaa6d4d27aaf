package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pushrelay/pushrelay/internal/services"
	apperrors "github.com/pushrelay/pushrelay/pkg/errors"
	"github.com/pushrelay/pushrelay/pkg/response"
)

// restListLimit is the default page size on the request/response surface.
const restListLimit = 20

// NotificationHandler exposes the synchronous request/response surface over
// the same dispatcher and store the websocket commands use.
type NotificationHandler struct {
	dispatcher    *services.Dispatcher
	notifications *services.NotificationService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(dispatcher *services.Dispatcher, notifications *services.NotificationService) (*NotificationHandler, error) {
	if dispatcher == nil {
		return nil, errors.New("notification handler: dispatcher is required")
	}
	if notifications == nil {
		return nil, errors.New("notification handler: notification service is required")
	}
	return &NotificationHandler{dispatcher: dispatcher, notifications: notifications}, nil
}

// Create runs the full dispatch pipeline for a producer that is not holding a
// websocket connection.
func (h *NotificationHandler) Create(c *gin.Context) {
	var payload struct {
		Title      string         `json:"title" validate:"required,max=255"`
		Message    string         `json:"message" validate:"required"`
		Type       string         `json:"type" validate:"omitempty,oneof=info success warning error"`
		UserID     *int64         `json:"user_id"`
		UserGroup  string         `json:"user_group"`
		ImageURL   string         `json:"image_url"`
		ActionText string         `json:"action_text"`
		ActionURL  string         `json:"action_url"`
		Metadata   map[string]any `json:"metadata"`
	}

	if !bindAndValidate(c, &payload) {
		return
	}

	notification, err := h.dispatcher.Dispatch(c.Request.Context(), services.SendInput{
		Title:      payload.Title,
		Message:    payload.Message,
		Type:       payload.Type,
		UserID:     payload.UserID,
		UserGroup:  payload.UserGroup,
		ImageURL:   payload.ImageURL,
		ActionText: payload.ActionText,
		ActionURL:  payload.ActionURL,
		Metadata:   payload.Metadata,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, notification)
}

// List returns a user's notifications, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	userID := int64(parseIntQuery(c, "user_id", 0))
	if userID <= 0 {
		response.Error(c, apperrors.NewBadRequest("user_id query parameter is required"))
		return
	}

	limit := parseIntQuery(c, "limit", restListLimit)
	if limit <= 0 {
		limit = restListLimit
	}

	items, err := h.notifications.ListForUser(c.Request.Context(), userID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		Count: len(items),
		Limit: limit,
	})
}

// MarkRead acknowledges a notification on behalf of its owner. A mismatched
// owner or unknown id still yields a success-shaped reply; the updated flag
// tells honest callers whether anything changed.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var payload struct {
		UserID int64 `json:"user_id" validate:"required,gt=0"`
	}
	if !bindAndValidate(c, &payload) {
		return
	}

	updated, err := h.dispatcher.MarkRead(c.Request.Context(), id, payload.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"success": true, "updated": updated})
}
