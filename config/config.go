package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	StorageLevelDB = "leveldb"
	StorageMemory  = "memory"
	StorageBolt    = "bolt"

	JournalSQLite   = "sqlite"
	JournalPostgres = "postgres"
)

// Config is the fairlaunchd daemon configuration.
type Config struct {
	ListenAddress string   `toml:"ListenAddress"`
	DataDir       string   `toml:"DataDir"`
	Environment   string   `toml:"Environment"`
	NativeSymbol  string   `toml:"NativeSymbol"`
	ManifestFile  string   `toml:"ManifestFile"`
	EnableFaucet  bool     `toml:"EnableFaucet"`
	PausedModules []string `toml:"PausedModules"`

	Storage       Storage              `toml:"storage"`
	Journal       Journal              `toml:"journal"`
	Auth          Auth                 `toml:"auth"`
	RateLimits    map[string]RateLimit `toml:"rate_limits"`
	Observability Observability        `toml:"observability"`
	Logging       Logging              `toml:"logging"`
}

// Load loads the configuration from the given path, writing a default file
// first when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if cfg.Auth.HMACSecret == "" && strings.TrimSpace(cfg.Auth.HMACSecretEnv) != "" {
		cfg.Auth.HMACSecret = strings.TrimSpace(os.Getenv(strings.TrimSpace(cfg.Auth.HMACSecretEnv)))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written on first start.
func Default() *Config {
	cfg := &Config{
		ListenAddress: ":8645",
		DataDir:       "./fairlaunch-data",
		NativeSymbol:  "NATIVE",
		Storage:       Storage{Backend: StorageLevelDB},
		Journal:       Journal{Driver: JournalSQLite},
		Auth: Auth{
			Enabled:          true,
			HMACSecretEnv:    "FAIRLAUNCH_JWT_SECRET",
			Issuer:           "fairlaunch",
			ClockSkewSeconds: 120,
		},
		RateLimits: map[string]RateLimit{
			"bids":   {RequestsPerMinute: 120, Burst: 20},
			"cranks": {RequestsPerMinute: 600, Burst: 60},
		},
		Observability: Observability{Metrics: true, LogRequests: true},
		Logging:       Logging{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8645"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./fairlaunch-data"
	}
	if strings.TrimSpace(c.NativeSymbol) == "" {
		c.NativeSymbol = "NATIVE"
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageLevelDB
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "state")
		if c.Storage.Backend == StorageBolt {
			c.Storage.Path += ".bolt"
		}
	}
	c.Journal.Driver = strings.ToLower(strings.TrimSpace(c.Journal.Driver))
	if c.Journal.Driver == "" {
		c.Journal.Driver = JournalSQLite
	}
	if c.Journal.Driver == JournalSQLite && strings.TrimSpace(c.Journal.DSN) == "" {
		c.Journal.DSN = filepath.Join(c.DataDir, "journal.db")
	}
	if c.Auth.ClockSkewSeconds <= 0 {
		c.Auth.ClockSkewSeconds = 120
	}
	if c.RateLimits == nil {
		c.RateLimits = map[string]RateLimit{}
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.PausedModules == nil {
		c.PausedModules = []string{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// WriteDefault writes the default configuration to path, refusing to replace
// an existing file.
func WriteDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, os.ErrExist
	}
	return createDefault(path)
}
