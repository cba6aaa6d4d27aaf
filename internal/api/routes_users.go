package api

import (
	"github.com/gin-gonic/gin"

	"github.com/pushrelay/pushrelay/internal/handlers"
)

func registerUserRoutes(api *gin.RouterGroup, handler *handlers.UserHandler) {
	group := api.Group("/users")
	{
		group.GET("", handler.List)
		group.GET("/online", handler.ListOnline)
	}
}
