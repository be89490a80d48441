package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/tradepost/internal/auditctx"
	iauth "github.com/charlesng35/tradepost/internal/auth"
	"github.com/charlesng35/tradepost/pkg/errors"
	"github.com/charlesng35/tradepost/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
)

// Auth enforces JWT authentication using the supplied JWT service.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		authenticate(c, claims)
		c.Next()
	}
}

// OptionalAuth resolves the viewer when a valid bearer token is present and lets anonymous
// requests through. An invalid token is treated the same as no token.
func OptionalAuth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if claims, err := jwt.ValidateAccessToken(token); err == nil {
				authenticate(c, claims)
				c.Next()
				return
			}
		}

		attachActor(c, "")
		c.Next()
	}
}

// UserID returns the authenticated user id, or an empty string for anonymous requests.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserIDKey)
}

func bearerToken(c *gin.Context) (string, bool) {
	authz := c.GetHeader("Authorization")
	if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authz[7:])
	return token, token != ""
}

func authenticate(c *gin.Context, claims *iauth.Claims) {
	c.Set(CtxClaimsKey, claims)
	c.Set(CtxUserIDKey, claims.UserID)
	attachActor(c, claims.UserID)
}

// attachActor propagates identity and client metadata into the request context so services
// can attribute security log entries.
func attachActor(c *gin.Context, userID string) {
	ctx := auditctx.WithActor(c.Request.Context(), auditctx.Actor{
		UserID:    userID,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	c.Request = c.Request.WithContext(ctx)
}
