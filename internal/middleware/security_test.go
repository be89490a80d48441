package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/api/profiles/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"phone": "+1 555 0100"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/profiles/seller", nil))
	require.Equal(t, http.StatusOK, w.Code)

	expected := map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Cache-Control":           "no-store",
		"Vary":                    "Authorization",
		"Referrer-Policy":         "no-referrer",
	}
	for name, value := range expected {
		require.Equal(t, value, w.Header().Get(name), name)
	}
	require.Empty(t, w.Header().Get("X-XSS-Protection"))
}
