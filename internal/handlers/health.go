package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pushrelay/pushrelay/pkg/response"
)

// Health returns a status payload useful for readiness checks. When a database
// handle is supplied the check also pings the underlying connection.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbStatus := "ok"
		if db != nil {
			sqlDB, err := db.DB()
			if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
				dbStatus = "unreachable"
			}
		}

		if dbStatus != "ok" {
			response.Success(c, http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": dbStatus})
			return
		}

		response.Success(c, http.StatusOK, gin.H{"status": "ok", "database": dbStatus})
	}
}
