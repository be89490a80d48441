package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/tradepost/pkg/errors"
	"github.com/charlesng35/tradepost/pkg/response"
)

// requestContext returns the request context, which carries the actor attached by the auth middleware.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

// requireParam reads a trimmed path parameter, writing a 400 response when it is blank.
func requireParam(c *gin.Context, name string) (string, bool) {
	value := strings.TrimSpace(c.Param(name))
	if value == "" {
		response.Error(c, appErrors.NewBadRequest(name+" is required"))
		return "", false
	}
	return value, true
}

// parseIntQuery returns fallback when the query value is absent or not a number.
func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
