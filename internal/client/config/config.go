package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for authctl.
type Config struct {
	ServerEndpointAddr string
	SessionFile        string
	CallTimeout        time.Duration
}

// LoadDefaults populates c with sensible defaults. The session file lives
// in the user's config directory when one is known.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.CallTimeout = 10 * time.Second

	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	c.SessionFile = filepath.Join(dir, "authkeeper", "session.json")
}

// LoadConfig constructs a Config from defaults, the optional JSON file and
// the flags in args. Later sources take precedence over earlier ones.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
