package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/tradepost/internal/monitoring"
	"github.com/charlesng35/tradepost/pkg/response"
)

// Health returns a simple status payload useful for liveness checks.
func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}

// Readiness evaluates dependency probes and answers 503 when a required dependency is down.
func Readiness(health *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if health == nil {
			response.Success(c, http.StatusOK, gin.H{"status": monitoring.StatusUp})
			return
		}

		report := health.Evaluate(requestContext(c))
		status := http.StatusOK
		if !report.Success {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, response.Response{Success: report.Success, Data: report})
	}
}
