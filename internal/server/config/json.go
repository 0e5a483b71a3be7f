package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// Durations use timex.Duration, which accepts both "15m" style strings and
// integer nanoseconds. Fields left out of the file keep their current value.
type JsonConfig struct {
	EndpointAddrGRPC             string          `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string          `json:"database_dsn"`
	SecretKey                    string          `json:"secret_key"`
	LookupKey                    string          `json:"lookup_key"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	MaxSessions                  *int            `json:"max_sessions"`
	CleanupAt                    string          `json:"cleanup_at"`
	StoreTimeout                 *timex.Duration `json:"store_timeout"`
	RedisAddr                    *string         `json:"redis_addr"`
	MetricsAddr                  *string         `json:"metrics_addr"`
}

// parseJson overlays config with the JSON file named by -c or -config.
// Without either flag nothing is loaded.
func parseJson(config *Config, args []string) error {
	jsonConfigFile := flagx.ConfigPath(args)

	// nothing to load
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.LookupKey, c.LookupKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.StoreTimeout, c.StoreTimeout)

	if c.MaxSessions != nil {
		config.MaxSessions = *c.MaxSessions
	}
	if c.CleanupAt != "" {
		ct, err := timex.ParseClockTime(c.CleanupAt)
		if err != nil {
			return err
		}
		config.CleanupAt = ct
	}
	// Empty strings are meaningful here: they disable Redis or metrics.
	if c.RedisAddr != nil {
		config.RedisAddr = *c.RedisAddr
	}
	if c.MetricsAddr != nil {
		config.MetricsAddr = *c.MetricsAddr
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
