package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/pushrelay/pushrelay/internal/database/testutil"
	"github.com/pushrelay/pushrelay/internal/models"
	"github.com/pushrelay/pushrelay/internal/realtime"
	"github.com/pushrelay/pushrelay/internal/services"
	"github.com/pushrelay/pushrelay/pkg/response"
)

func newNotificationFixture(t *testing.T) (*gin.Engine, *services.Dispatcher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)

	notifications, err := services.NewNotificationService(db)
	require.NoError(t, err)
	users, err := services.NewUserService(db)
	require.NoError(t, err)

	directory := realtime.NewDirectory()
	hub := realtime.NewHub(directory)

	dispatcher, err := services.NewDispatcher(notifications, users, directory, hub)
	require.NoError(t, err)

	handler, err := NewNotificationHandler(dispatcher, notifications)
	require.NoError(t, err)

	r := gin.New()
	r.POST("/api/notifications", handler.Create)
	r.GET("/api/notifications", handler.List)
	r.POST("/api/notifications/:id/read", handler.MarkRead)
	return r, dispatcher
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestNotificationHandlerCreate(t *testing.T) {
	r, _ := newNotificationFixture(t)

	w := postJSON(t, r, "/api/notifications", map[string]any{
		"title":   "Deploy finished",
		"message": "build 42 is live",
		"type":    "success",
		"user_id": 7,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.True(t, payload.Success)

	data, err := json.Marshal(payload.Data)
	require.NoError(t, err)

	var created models.Notification
	require.NoError(t, json.Unmarshal(data, &created))
	require.NotZero(t, created.ID)
	require.True(t, created.IsDelivered)
	require.Equal(t, int64(7), *created.UserID)
}

func TestNotificationHandlerCreateRejectsBadPayload(t *testing.T) {
	r, _ := newNotificationFixture(t)

	// Missing title
	w := postJSON(t, r, "/api/notifications", map[string]any{"message": "body"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown type
	w = postJSON(t, r, "/api/notifications", map[string]any{
		"title":   "t",
		"message": "m",
		"type":    "shouty",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.False(t, payload.Success)
	require.Equal(t, "VALIDATION_FAILED", payload.Error.Code)
}

func TestNotificationHandlerList(t *testing.T) {
	r, dispatcher := newNotificationFixture(t)
	ctx := context.Background()

	userID := int64(3)
	for i := 0; i < 25; i++ {
		_, err := dispatcher.Dispatch(ctx, services.SendInput{
			Title:   "item " + strconv.Itoa(i),
			Message: "body",
			UserID:  &userID,
		})
		require.NoError(t, err)
	}

	// user_id is mandatory
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Default page size is 20
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/notifications?user_id=3", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.NotNil(t, payload.Meta)
	require.Equal(t, 20, payload.Meta.Count)
	require.Equal(t, 20, payload.Meta.Limit)

	// Explicit limit
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/notifications?user_id=3&limit=5", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, 5, payload.Meta.Count)
}

func TestNotificationHandlerMarkRead(t *testing.T) {
	r, dispatcher := newNotificationFixture(t)
	ctx := context.Background()

	userID := int64(4)
	created, err := dispatcher.Dispatch(ctx, services.SendInput{
		Title:   "ping",
		Message: "body",
		UserID:  &userID,
	})
	require.NoError(t, err)

	idPath := "/api/notifications/" + strconv.FormatInt(created.ID, 10) + "/read"

	w := postJSON(t, r, idPath, map[string]any{"user_id": 4})
	require.Equal(t, http.StatusOK, w.Code)

	var payload struct {
		Success bool `json:"success"`
		Data    struct {
			Updated bool `json:"updated"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.True(t, payload.Success)
	require.True(t, payload.Data.Updated)

	// A foreign owner gets a success-shaped reply with updated=false.
	w = postJSON(t, r, idPath, map[string]any{"user_id": 9})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.False(t, payload.Data.Updated)

	// Malformed id parameter
	w = postJSON(t, r, "/api/notifications/zero/read", map[string]any{"user_id": 4})
	require.Equal(t, http.StatusBadRequest, w.Code)
}
