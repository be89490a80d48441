package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/tradepost/internal/handlers/testutil"
	"github.com/charlesng35/tradepost/internal/monitoring"
)

func TestHealthEndpoints(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.True(t, resp.Success)

	w = env.Request(http.MethodGet, "/health/ready", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report monitoring.HealthReport
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &report)
	require.True(t, report.Success)
	require.Equal(t, monitoring.StatusUp, report.Status)
}

func TestReadinessReportsDatabaseOutage(t *testing.T) {
	env := testutil.NewEnv(t)

	sqlDB, err := env.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w := env.Request(http.MethodGet, "/health/ready", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.False(t, testutil.DecodeResponse(t, w).Success)
}

func TestMetricsEndpointAndUnknownRoutes(t *testing.T) {
	env := testutil.NewEnv(t)

	require.Equal(t, http.StatusOK, env.Request(http.MethodGet, "/health", nil, "").Code)

	w := env.Request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "tradepost_api_latency_seconds")

	w = env.Request(http.MethodGet, "/api/does-not-exist", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.False(t, resp.Success)
	require.Equal(t, "NOT_FOUND", resp.Error.Code)
}
