package server

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// DefaultSnapshotThreshold is how many changes a client may lag behind before it is
// sent a snapshot instead.
const DefaultSnapshotThreshold = 500

// Config holds the server settings read from a TOML file.
type Config struct {
	// Addr is the address to listen on, such as ":8009".
	Addr              string
	SnapshotThreshold int
	// RedisAddr enables the Redis broadcaster, for servers sharing watchers.
	RedisAddr string
	// DebugFile enables a JSONL trace of every request.
	DebugFile string
	// Metrics registers the server counters and serves them on /metrics.
	Metrics  bool
	LogLevel string
}

// LoadConfig reads the server config in a TOML file, filling in defaults.
func LoadConfig(path string) (*Config, error) {
	conf := &Config{
		Addr:              ":8009",
		SnapshotThreshold: DefaultSnapshotThreshold,
		LogLevel:          "info",
	}
	if _, err := toml.DecodeFile(path, conf); err != nil {
		return nil, errors.Wrapf(err, "read server config %s", path)
	}
	if conf.SnapshotThreshold <= 0 {
		return nil, errors.Errorf("server config %s: SnapshotThreshold must be positive, got %d", path, conf.SnapshotThreshold)
	}
	switch conf.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, errors.Errorf("server config %s: unknown LogLevel %q", path, conf.LogLevel)
	}
	return conf, nil
}
