package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/tradepost/pkg/errors"
	"github.com/charlesng35/tradepost/pkg/logger"
	"github.com/charlesng35/tradepost/pkg/response"
)

// Recovery converts panics into a generic 500 envelope. The panic value and stack are only logged.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			fields := []zap.Field{
				zap.String("method", c.Request.Method),
				zap.String("route", routeLabel(c)),
				zap.Any("panic", r),
				zap.Stack("stack"),
			}
			if userID := UserID(c); userID != "" {
				fields = append(fields, zap.String("user_id", userID))
			}
			logger.WithModule("http").Error("handler panic recovered", fields...)

			response.Error(c, errors.ErrInternalServer)
			c.Abort()
		}()
		c.Next()
	}
}

// NotFoundHandler returns a JSON 404 response for unknown routes.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, errors.ErrNotFound.WithMessage(fmt.Sprintf("route %s not found", c.Request.URL.Path)))
}
