package config

import "time"

// Config holds runtime settings for the Shopkeeper client.
//
// Fields:
//   - ServerURL: base URL of the sync server HTTP API. Empty means no server.
//   - GRPCAddr: host:port of the gRPC endpoint, preferred over ServerURL when set.
//   - DatabasePath: SQLite file holding the local replica.
//   - OnlineCheckInterval: how often the client probes server reachability.
//   - SyncInterval: period of automatic sync rounds.
//   - RequestTimeout: upper bound for a single request to the server.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	ServerURL           string
	GRPCAddr            string
	DatabasePath        string
	OnlineCheckInterval time.Duration
	SyncInterval        time.Duration
	RequestTimeout      time.Duration
	LogLevel            string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.GRPCAddr = ""
	c.DatabasePath = "shopkeeper.db"
	c.OnlineCheckInterval = 3 * time.Second
	c.SyncInterval = 30 * time.Second
	c.RequestTimeout = 30 * time.Second
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
