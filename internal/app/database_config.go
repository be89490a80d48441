package app

import (
	"strings"

	"github.com/charlesng35/tradepost/internal/database"
)

// DatabaseOpenConfig converts DatabaseConfig into the parameters expected by database.Open.
func (c DatabaseConfig) DatabaseOpenConfig() database.Config {
	dbCfg := database.Config{
		Driver:          strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:            strings.TrimSpace(c.Path),
		DSN:             strings.TrimSpace(c.DSN),
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}

	var host DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		host = c.Postgres
	case "mysql":
		host = c.MySQL
	default:
		// Leave driver as-is to surface unsupported driver error during open.
		return dbCfg
	}

	dbCfg.Host = strings.TrimSpace(host.Host)
	dbCfg.Port = host.Port
	dbCfg.Name = strings.TrimSpace(host.Database)
	dbCfg.User = strings.TrimSpace(host.Username)
	dbCfg.Password = host.Password
	dbCfg.Options = host.Options
	return dbCfg
}
