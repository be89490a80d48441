package database

import (
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const applicationName = "tradepost"

// Timestamps are written in UTC by gormConfig; every dialect reads them back in UTC as well.

func openSQLite(cfg Config) (*gorm.DB, error) {
	dsn, err := sqliteDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return nil, err
	}
	return db, nil
}

func sqliteDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" || strings.EqualFold(path, ":memory:") {
		return "file::memory:?cache=shared&_foreign_keys=1", nil
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	return fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000", filepath.ToSlash(path)), nil
}

func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn, err := buildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(postgres.Open(dsn), gormConfig())
}

// buildPostgresDSN renders a keyword/value connection string. Options override the defaults
// (sslmode=disable, TimeZone=UTC, application_name).
func buildPostgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("postgres configuration requires user and database name")
	}

	params := map[string]string{
		"host":             valueOr(cfg.Host, "localhost"),
		"port":             strconv.Itoa(portOr(cfg.Port, 5432)),
		"user":             cfg.User,
		"dbname":           cfg.Name,
		"sslmode":          "disable",
		"TimeZone":         "UTC",
		"application_name": applicationName,
	}
	if cfg.Password != "" {
		params["password"] = cfg.Password
	}
	for key, value := range cfg.Options {
		params[key] = value
	}

	// Connection identity first, then options in a stable order.
	leading := []string{"host", "port", "user", "password", "dbname"}
	parts := make([]string, 0, len(params))
	for _, key := range leading {
		if value, ok := params[key]; ok {
			parts = append(parts, key+"="+quotePostgresValue(value))
			delete(params, key)
		}
	}
	for _, key := range sortedKeys(params) {
		parts = append(parts, key+"="+quotePostgresValue(params[key]))
	}
	return strings.Join(parts, " "), nil
}

func quotePostgresValue(value string) string {
	if value != "" && !strings.ContainsAny(value, " '\\") {
		return value
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value)
	return "'" + escaped + "'"
}

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := buildMySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(mysql.Open(dsn), gormConfig())
}

// buildMySQLDSN uses the driver's own formatter so credentials and parameters are escaped correctly.
func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql configuration requires user and database name")
	}

	mc := gomysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(valueOr(cfg.Host, "127.0.0.1"), strconv.Itoa(portOr(cfg.Port, 3306)))
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	for key, value := range cfg.Options {
		mc.Params[key] = value
	}

	return mc.FormatDSN(), nil
}

func valueOr(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}

func portOr(port, fallback int) int {
	if port > 0 {
		return port
	}
	return fallback
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
