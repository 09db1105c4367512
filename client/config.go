package client

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// DefaultReconnectDelay is how long a watch waits before reopening a broken stream.
const DefaultReconnectDelay = 3 * time.Second

// Config holds the client settings read from a TOML file.
type Config struct {
	// ServerURL is the base URL of the server, such as "http://localhost:8009".
	ServerURL string
	// Key names the client for the server. A random one is used if empty.
	Key            string
	ReconnectDelay Duration
	// Metrics registers the client counters in the default prometheus registry.
	Metrics bool
}

// LoadConfig reads the client config in a TOML file, filling in defaults.
func LoadConfig(path string) (*Config, error) {
	conf := &Config{ReconnectDelay: Duration{DefaultReconnectDelay}}
	if _, err := toml.DecodeFile(path, conf); err != nil {
		return nil, errors.Wrapf(err, "read client config %s", path)
	}
	if conf.ServerURL == "" {
		return nil, errors.Errorf("client config %s: missing ServerURL", path)
	}
	if conf.ReconnectDelay.Duration <= 0 {
		return nil, errors.Errorf("client config %s: ReconnectDelay must be positive, got %v", path, conf.ReconnectDelay)
	}
	return conf, nil
}

// Options returns the client options of the config.
func (c *Config) Options() []Option {
	opts := []Option{
		WithTransport(NewHTTPTransport(c.ServerURL, nil)),
		WithReconnectDelay(c.ReconnectDelay.Duration),
		WithMetrics(NewMetrics(c.Metrics)),
	}
	if c.Key != "" {
		opts = append(opts, WithKey(c.Key))
	}
	return opts
}

// Duration is a time.Duration written as a string such as "3s" in config files.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "parse duration %q", text)
	}
	d.Duration = v
	return nil
}
