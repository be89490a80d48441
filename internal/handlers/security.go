package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/tradepost/internal/middleware"
	"github.com/charlesng35/tradepost/internal/services"
	"github.com/charlesng35/tradepost/pkg/response"
)

// SecurityHandler exposes the caller's own security events.
type SecurityHandler struct {
	log *services.SecurityLog
}

// NewSecurityHandler constructs a SecurityHandler backed by the provided security log.
func NewSecurityHandler(log *services.SecurityLog) (*SecurityHandler, error) {
	if log == nil {
		return nil, errors.New("security handler: security log is required")
	}
	return &SecurityHandler{log: log}, nil
}

// GET /api/security/events?limit=
func (h *SecurityHandler) Events(c *gin.Context) {
	entries, err := h.log.Recent(requestContext(c), middleware.UserID(c), parseIntQuery(c, "limit", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, entries)
}
