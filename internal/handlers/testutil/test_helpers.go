package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/tradepost/internal/api"
	"github.com/charlesng35/tradepost/internal/app"
	iauth "github.com/charlesng35/tradepost/internal/auth"
	sharedtestutil "github.com/charlesng35/tradepost/internal/database/testutil"
	"github.com/charlesng35/tradepost/internal/models"
	"github.com/charlesng35/tradepost/internal/monitoring"
	"github.com/charlesng35/tradepost/internal/ratelimit"
	"github.com/charlesng35/tradepost/internal/realtime"
	"github.com/charlesng35/tradepost/internal/services"
	"github.com/charlesng35/tradepost/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T           *testing.T
	DB          *gorm.DB
	Router      *gin.Engine
	JWT         *iauth.JWTService
	SecurityLog *services.SecurityLog
	Hub         *realtime.Hub
	Config      *app.Config
}

// EnvOption customises NewEnv.
type EnvOption func(*envConfig)

type envConfig struct {
	profiles []models.Profile
	mutate   []func(*app.Config)
}

// WithProfiles seeds the given profiles.
func WithProfiles(profiles ...models.Profile) EnvOption {
	return func(cfg *envConfig) {
		cfg.profiles = append(cfg.profiles, profiles...)
	}
}

// WithConfig adjusts the application config before services are built.
func WithConfig(fn func(*app.Config)) EnvOption {
	return func(cfg *envConfig) {
		cfg.mutate = append(cfg.mutate, fn)
	}
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	var envCfg envConfig
	for _, opt := range opts {
		opt(&envCfg)
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithProfiles(envCfg.profiles...))

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}
	for _, fn := range envCfg.mutate {
		fn(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	securityLog, err := services.NewSecurityLog(db, cfg.SecurityLog.SecurityLogOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = securityLog.Close() })

	profiles, err := services.NewProfileService(db)
	require.NoError(t, err)
	store, err := services.NewPermissionStore(db)
	require.NoError(t, err)

	limiter := ratelimit.NewMemoryLimiter()
	hub := realtime.NewHub()

	permissions, err := services.NewContactPermissionService(store, profiles, limiter, securityLog, hub, cfg.Contact.ContactPermissionOptions())
	require.NoError(t, err)
	resolver, err := services.NewProfileResolver(profiles, store, limiter, securityLog, cfg.Contact.ProfileResolverOptions())
	require.NoError(t, err)
	views, err := services.NewProfileViewService(resolver, permissions)
	require.NoError(t, err)

	health := monitoring.NewHealthManager(time.Second)
	health.Register("database", monitoring.DatabaseProbe(db))

	router, err := api.NewRouter(cfg, api.Dependencies{
		JWT:         jwtSvc,
		Profiles:    profiles,
		Resolver:    resolver,
		Views:       views,
		Permissions: permissions,
		SecurityLog: securityLog,
		Hub:         hub,
		Health:      health,
	})
	require.NoError(t, err)

	return &Env{
		T:           t,
		DB:          db,
		Router:      router,
		JWT:         jwtSvc,
		SecurityLog: securityLog,
		Hub:         hub,
		Config:      cfg,
	}
}

// Token issues an access token for userID.
func (e *Env) Token(userID string) string {
	e.T.Helper()
	token, err := e.JWT.IssueToken(iauth.TokenInput{UserID: userID})
	require.NoError(e.T, err)
	return token
}

// FlushSecurityLog waits until queued security events are persisted.
func (e *Env) FlushSecurityLog() {
	e.T.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(e.T, e.SecurityLog.Flush(ctx))
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "203.0.113.7:40000"
	req.Header.Set("User-Agent", "handler-tests")

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
