package config

import (
	"fmt"
	"strings"
)

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageLevelDB, StorageMemory, StorageBolt:
	default:
		return fmt.Errorf("storage: unsupported backend %q", c.Storage.Backend)
	}
	switch c.Journal.Driver {
	case JournalSQLite:
	case JournalPostgres:
		if strings.TrimSpace(c.Journal.DSN) == "" {
			return fmt.Errorf("journal: postgres requires a DSN")
		}
	default:
		return fmt.Errorf("journal: unsupported driver %q", c.Journal.Driver)
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth: enabled without an HMAC secret (set HMACSecret or %s)", c.Auth.HMACSecretEnv)
	}
	for name, limit := range c.RateLimits {
		if limit.RequestsPerMinute < 0 || limit.Burst < 0 {
			return fmt.Errorf("rate_limits.%s: values must not be negative", name)
		}
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging: rotation limits must not be negative")
	}
	return nil
}
