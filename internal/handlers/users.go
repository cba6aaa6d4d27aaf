package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pushrelay/pushrelay/internal/services"
	"github.com/pushrelay/pushrelay/pkg/response"
)

// UserHandler exposes read endpoints over the user registry.
type UserHandler struct {
	users *services.UserService
}

// NewUserHandler constructs a user handler.
func NewUserHandler(users *services.UserService) (*UserHandler, error) {
	if users == nil {
		return nil, errors.New("user handler: user service is required")
	}
	return &UserHandler{users: users}, nil
}

// List returns every known user.
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.users.ListAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, users)
}

// ListOnline returns users with a live connection.
func (h *UserHandler) ListOnline(c *gin.Context) {
	users, err := h.users.ListOnline(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, users)
}
