package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/tradepost/internal/auth"
	"github.com/charlesng35/tradepost/internal/realtime"
	"github.com/charlesng35/tradepost/pkg/errors"
	"github.com/charlesng35/tradepost/pkg/response"
)

// RealtimeHandler upgrades HTTP connections into authenticated WebSocket streams.
type RealtimeHandler struct {
	hub *realtime.Hub
	jwt *iauth.JWTService
}

// NewRealtimeHandler constructs a realtime handler.
func NewRealtimeHandler(hub *realtime.Hub, jwt *iauth.JWTService) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, jwt: jwt}
}

// GET /api/realtime?token=&streams=
//
// Browsers cannot set headers on websocket upgrades, so the token may travel in the query.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.jwt == nil || h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		authz := c.GetHeader("Authorization")
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			token = strings.TrimSpace(authz[7:])
		}
	}
	if token == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	streams := gatherStreams(c)
	if len(streams) == 0 {
		streams = []string{realtime.StreamContactPermissions}
	}
	for _, stream := range streams {
		if !h.hub.Allows(stream) {
			response.Error(c, errors.ErrNotFound.WithMessage("unknown stream "+stream))
			return
		}
	}

	h.hub.Serve(claims.UserID, streams, c.Writer, c.Request)
}

func gatherStreams(c *gin.Context) []string {
	var streams []string
	for _, queryStream := range c.QueryArray("stream") {
		streams = append(streams, queryStream)
	}
	if raw := c.Query("streams"); raw != "" {
		streams = append(streams, strings.Split(raw, ",")...)
	}

	seen := make(map[string]struct{}, len(streams))
	out := make([]string, 0, len(streams))
	for _, stream := range streams {
		stream = strings.ToLower(strings.TrimSpace(stream))
		if stream == "" {
			continue
		}
		if _, ok := seen[stream]; ok {
			continue
		}
		seen[stream] = struct{}{}
		out = append(out, stream)
	}
	return out
}
