package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/pushrelay/pushrelay/internal/database/testutil"
	"github.com/pushrelay/pushrelay/internal/models"
	"github.com/pushrelay/pushrelay/internal/services"
	"github.com/pushrelay/pushrelay/pkg/response"
)

func newUserFixture(t *testing.T) (*gin.Engine, *services.UserService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)

	users, err := services.NewUserService(db)
	require.NoError(t, err)

	handler, err := NewUserHandler(users)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/api/users", handler.List)
	r.GET("/api/users/online", handler.ListOnline)
	return r, users
}

func decodeUsers(t *testing.T, w *httptest.ResponseRecorder) []models.User {
	t.Helper()

	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.True(t, payload.Success)

	data, err := json.Marshal(payload.Data)
	require.NoError(t, err)

	var users []models.User
	require.NoError(t, json.Unmarshal(data, &users))
	return users
}

func TestUserHandlerListAndOnline(t *testing.T) {
	r, users := newUserFixture(t)
	ctx := context.Background()

	_, err := users.Upsert(ctx, "alice", "alice@example.com", "conn-1")
	require.NoError(t, err)
	_, err = users.Upsert(ctx, "bob", "bob@example.com", "")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decodeUsers(t, w), 2)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/users/online", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	online := decodeUsers(t, w)
	require.Len(t, online, 1)
	require.Equal(t, "alice", online[0].Username)
	require.True(t, online[0].IsOnline)
}
