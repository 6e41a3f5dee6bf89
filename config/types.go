package config

// Storage selects the key-value backend holding sale state.
type Storage struct {
	// Backend is "leveldb" or "memory".
	Backend string `toml:"Backend"`
	Path    string `toml:"Path"`
}

// Journal configures the relational event journal.
type Journal struct {
	// Driver is "sqlite" or "postgres".
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// Auth configures bearer token verification for privileged routes.
type Auth struct {
	Enabled          bool   `toml:"Enabled"`
	HMACSecret       string `toml:"HMACSecret"`
	HMACSecretEnv    string `toml:"HMACSecretEnv"`
	Issuer           string `toml:"Issuer"`
	Audience         string `toml:"Audience"`
	ClockSkewSeconds int    `toml:"ClockSkewSeconds"`
}

// RateLimit bounds how often one client may call a route group.
type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// Observability toggles metrics, tracing and request logs.
type Observability struct {
	Metrics      bool   `toml:"Metrics"`
	Tracing      bool   `toml:"Tracing"`
	OTLPEndpoint string `toml:"OTLPEndpoint"`
	OTLPInsecure bool   `toml:"OTLPInsecure"`
	LogRequests  bool   `toml:"LogRequests"`
}

// Logging controls the structured log sink.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}
