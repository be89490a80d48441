package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/tradepost/internal/auth"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.True(t, cfg.Server.IsDevelopment())
	require.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)
	require.Equal(t, map[string]string{"sslmode": "require"}, cfg.Database.Postgres.Options)

	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "redis.example.com:6380", cfg.Cache.Redis.Address)
	require.True(t, cfg.Cache.Redis.TLS)
	require.Equal(t, 3*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "tradepost", cfg.Auth.JWT.Audience)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)

	require.Equal(t, 3, cfg.Contact.RequestLimit)
	require.Equal(t, 10*time.Minute, cfg.Contact.RequestWindow)
	require.Equal(t, 120, cfg.Contact.ProfileAccessLimit)
	require.Equal(t, 2*time.Minute, cfg.Contact.ProfileAccessWindow)
	require.Equal(t, 720*time.Hour, cfg.Contact.DefaultGrantTTL)

	require.Equal(t, 64, cfg.SecurityLog.BufferSize)
	require.Equal(t, 5*time.Second, cfg.SecurityLog.WriteTimeout)
	require.Equal(t, 30, cfg.SecurityLog.RetentionDays)

	require.InDelta(t, 2.5, cfg.HTTP.RateLimit.RPS, 0.0001)
	require.Equal(t, 5, cfg.HTTP.RateLimit.Burst)

	require.Equal(t, "@every 30m", cfg.Maintenance.PermissionSweep)
	require.Equal(t, "@daily", cfg.Maintenance.Retention)
	require.False(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.False(t, cfg.Server.IsDevelopment())
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 5, cfg.Contact.RequestLimit)
	require.Equal(t, 15*time.Minute, cfg.Contact.RequestWindow)
	require.Equal(t, 60, cfg.Contact.ProfileAccessLimit)
	require.Equal(t, time.Minute, cfg.Contact.ProfileAccessWindow)
	require.Zero(t, cfg.Contact.DefaultGrantTTL)
	require.Equal(t, 90, cfg.SecurityLog.RetentionDays)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("TRADEPOST_SERVER_PORT", "7070")
	t.Setenv("TRADEPOST_CONTACT_REQUEST_LIMIT", "9")
	t.Setenv("TRADEPOST_AUTH_JWT_SECRET", "from-env")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, 9, cfg.Contact.RequestLimit)
	require.Equal(t, "from-env", cfg.Auth.JWT.Secret)
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TRADEPOST_CONTACT_PROFILE_ACCESS_LIMIT=11\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		_ = os.Unsetenv("TRADEPOST_CONTACT_PROFILE_ACCESS_LIMIT")
	})

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 11, cfg.Contact.ProfileAccessLimit)
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := AuthConfig{
		JWT: JWTSettings{
			Secret:   " secret ",
			Issuer:   "issuer",
			Audience: "tradepost",
			TTL:      30 * time.Minute,
			Leeway:   time.Minute,
		},
	}

	require.Equal(t, auth.JWTConfig{
		Secret:         "secret",
		Issuer:         "issuer",
		Audience:       "tradepost",
		AccessTokenTTL: 30 * time.Minute,
		Leeway:         time.Minute,
	}, cfg.JWTServiceConfig())

	var empty AuthConfig
	require.Equal(t, auth.DefaultAccessTokenTTL, empty.JWTServiceConfig().AccessTokenTTL)
}

func TestDatabaseOpenConfig(t *testing.T) {
	sqlite := DatabaseConfig{Path: " ./data/test.sqlite "}.DatabaseOpenConfig()
	require.Equal(t, "sqlite", sqlite.Driver)
	require.Equal(t, "./data/test.sqlite", sqlite.Path)

	pg := DatabaseConfig{
		Driver:   "PostgreSQL",
		Postgres: DBAuthConfig{Host: "db", Port: 5432, Database: "tp", Username: "u", Password: "p"},
		MySQL:    DBAuthConfig{Host: "ignored"},
	}.DatabaseOpenConfig()
	require.Equal(t, "postgres", pg.Driver)
	require.Equal(t, "db", pg.Host)
	require.Equal(t, "tp", pg.Name)

	mysql := DatabaseConfig{Driver: "mysql", MySQL: DBAuthConfig{Host: "mysql-host", Port: 3306}}.DatabaseOpenConfig()
	require.Equal(t, "mysql-host", mysql.Host)
	require.Equal(t, 3306, mysql.Port)

	unknown := DatabaseConfig{Driver: "oracle"}.DatabaseOpenConfig()
	require.Equal(t, "oracle", unknown.Driver)
}

func TestContactConfigAdapters(t *testing.T) {
	cfg := ContactConfig{
		RequestLimit:        3,
		RequestWindow:       time.Minute,
		ProfileAccessLimit:  10,
		ProfileAccessWindow: time.Second,
		DefaultGrantTTL:     time.Hour,
	}

	opts := cfg.ContactPermissionOptions()
	require.Equal(t, 3, opts.RequestLimit)
	require.Equal(t, time.Minute, opts.RequestWindow)
	require.Equal(t, time.Hour, opts.DefaultGrantTTL)

	resolver := cfg.ProfileResolverOptions()
	require.Equal(t, 10, resolver.AccessLimit)
	require.Equal(t, time.Second, resolver.AccessWindow)

	logOpts := SecurityLogConfig{BufferSize: 8, WriteTimeout: time.Second}.SecurityLogOptions()
	require.Equal(t, 8, logOpts.BufferSize)
	require.Equal(t, time.Second, logOpts.WriteTimeout)
}
