package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

// parseFlags populates Config fields from the flags it owns in args.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("authctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.SessionFile, "session", cfg.SessionFile, "session file")
	timeout := fs.Int("timeout", int(cfg.CallTimeout.Seconds()), "call timeout (in seconds)")

	if err := fs.Parse(flagx.FilterArgs(args, []string{"-a", "-session", "-timeout"})); err != nil {
		return err
	}

	cfg.CallTimeout = time.Duration(*timeout) * time.Second
	return nil
}
