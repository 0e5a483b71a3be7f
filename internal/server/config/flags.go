package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

var serverFlags = []string{"-a", "-d", "-s", "-l", "-t", "-r", "-m", "-cleanup", "-st", "-redis", "-metrics"}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string        gRPC bind address (e.g., ":50051")
//	-d string        PostgreSQL DSN or "memory"
//	-s string        access token signing secret
//	-l string        refresh token lookup key
//	-t int           access token validity, minutes
//	-r int           refresh token validity, minutes
//	-m int           max active sessions per user
//	-cleanup string  daily cleanup time, "HH:MM"
//	-st int          store timeout, seconds
//	-redis string    Redis address of the denylist
//	-metrics string  Prometheus endpoint address
//
// Duration flags are integers that are converted to time.Duration values.
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.LookupKey, "l", config.LookupKey, "refresh token lookup key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")
	storeTimeout := fs.Int("st", int(config.StoreTimeout.Seconds()), "store timeout (in seconds)")

	fs.IntVar(&config.MaxSessions, "m", config.MaxSessions, "max active sessions per user")
	cleanupAt := fs.String("cleanup", config.CleanupAt.String(), "daily cleanup time (HH:MM)")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address for the token denylist")
	fs.StringVar(&config.MetricsAddr, "metrics", config.MetricsAddr, "metrics endpoint address")

	if err := fs.Parse(flagx.FilterArgs(args, serverFlags)); err != nil {
		return err
	}

	ct, err := timex.ParseClockTime(*cleanupAt)
	if err != nil {
		return err
	}
	config.CleanupAt = ct

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
	config.StoreTimeout = time.Duration(*storeTimeout) * time.Second
	return nil
}
