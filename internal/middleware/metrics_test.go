package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/tradepost/pkg/metrics"
)

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/profiles/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.CollectAndCount(metrics.APILatency)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/profiles/abc", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/profiles/def", nil))
	require.Equal(t, http.StatusOK, w.Code)

	require.LessOrEqual(t, testutil.CollectAndCount(metrics.APILatency), before+1)
}
