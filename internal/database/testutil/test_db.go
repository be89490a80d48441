package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/tradepost/internal/database"
	"github.com/charlesng35/tradepost/internal/models"
)

// TestDBOption customises the behaviour of MustOpenTestDB.
type TestDBOption func(*testDBConfig)

type testDBConfig struct {
	autoMigrate bool
	profiles    []models.Profile
}

// WithAutoMigrate enables automatic schema migration after opening the test database.
func WithAutoMigrate() TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.autoMigrate = true
	}
}

// WithProfiles migrates the schema and inserts the given profiles.
func WithProfiles(profiles ...models.Profile) TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.autoMigrate = true
		cfg.profiles = append(cfg.profiles, profiles...)
	}
}

// MustOpenTestDB opens an isolated in-memory SQLite database for tests, applying optional migrations
// and fixtures. The returned connection is automatically closed via t.Cleanup.
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	cfg := testDBConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	// A single connection keeps the named shared-cache database alive and avoids table locks.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := database.Open(database.Config{Driver: "sqlite", DSN: dsn, MaxOpenConns: 1})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if cfg.autoMigrate {
		require.NoError(t, database.AutoMigrate(db))
	}

	for i := range cfg.profiles {
		require.NoError(t, db.Create(&cfg.profiles[i]).Error)
	}

	return db
}
