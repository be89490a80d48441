package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const jwtSecretBytes = 48

// IsDevelopment reports whether the server runs outside production.
func (c ServerConfig) IsDevelopment() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "development", "dev", "local", "test":
		return true
	default:
		return false
	}
}

// ApplyRuntimeDefaults fills secrets that development setups commonly omit. Production
// configurations are left untouched so a missing secret fails startup.
// It returns a map describing which keys were generated so callers can log the event without exposing values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)
	if !cfg.Server.IsDevelopment() {
		return generated, nil
	}

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := generateHexKey(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	return generated, nil
}

// Validate reports configuration that would make the server unsafe to start.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(c.Auth.JWT.Secret) == "" {
		return fmt.Errorf("auth.jwt.secret must be configured")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535 (current: %d)", c.Server.Port)
	}
	if c.HTTP.RateLimit.RPS < 0 || c.HTTP.RateLimit.Burst < 0 {
		return fmt.Errorf("http.rate_limit values must not be negative")
	}
	if c.SecurityLog.RetentionDays < 0 {
		return fmt.Errorf("security_log.retention_days must not be negative")
	}
	return nil
}

func generateHexKey(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
