package transport

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-background-remover/internal/logger"
	"go-background-remover/pkg/models"
)

type readiness interface {
	Ready() bool
}

// healthCheck reports model readiness. A fault while computing the status
// is reported as unhealthy instead of escaping.
func healthCheck(r readiness) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.WithField("panic", rec).Error("Health check failed")
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, models.HealthResponse{
					Status:    "unhealthy",
					Error:     fmt.Sprint(rec),
					Timestamp: now(),
				})
			}
		}()

		model := "not_loaded"
		if r.Ready() {
			model = "loaded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    "healthy",
			Model:     model,
			Timestamp: now(),
		})
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
