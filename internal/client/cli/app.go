// Package cli implements the authctl commands.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/client/client"
	"github.com/dmitrijs2005/authkeeper/internal/client/config"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server"
	sc "github.com/dmitrijs2005/authkeeper/internal/server/config"
	"google.golang.org/grpc"
)

const usage = `usage: authctl <command> [flags]

Commands talking to the server (flags: -a addr, -session file, -timeout sec):
  register   [-email e]     create an EDITOR account and save its session
  login      [-email e]     log in and save the session
  refresh                   rotate the saved refresh token
  me                        show the identity bound to the saved access token
  logout                    end every session of the user
  ping                      check the server is reachable

Maintenance commands using the server's storage flags (-d dsn, -redis addr, ...):
  sweep                     run one cleanup sweep now
  seed-user  -email e -role ROLE   create an identity (password is prompted)
`

// ErrUsage is returned for an unknown or missing command.
var ErrUsage = errors.New("invalid usage")

type App struct {
	config *config.Config
	reader *bufio.Reader
	out    io.Writer
	logger logging.Logger

	// dialOpts are appended when connecting; tests use them to dial in-process.
	dialOpts []grpc.DialOption
	// loadServerConfig and newStack back the maintenance commands.
	loadServerConfig func(args []string) (*sc.Config, error)
	newStack         func(ctx context.Context, c *sc.Config, l logging.Logger) (*server.Stack, error)
}

func NewApp(c *config.Config, logger logging.Logger) *App {
	return &App{
		config:           c,
		reader:           bufio.NewReader(os.Stdin),
		out:              os.Stdout,
		logger:           logger,
		loadServerConfig: func([]string) (*sc.Config, error) { return sc.LoadConfig() },
		newStack:         server.NewStack,
	}
}

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "register":
		return a.register(ctx, rest)
	case "login":
		return a.login(ctx, rest)
	case "refresh":
		return a.refresh(ctx)
	case "me":
		return a.me(ctx)
	case "logout":
		return a.logout(ctx)
	case "ping":
		return a.ping(ctx)
	case "sweep":
		return a.sweep(ctx, rest)
	case "seed-user":
		return a.seedUser(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		fmt.Fprintf(a.out, "Unknown command: %s\n\n%s", cmd, usage)
		return ErrUsage
	}
}

func (a *App) connect() (*client.GRPCClient, error) {
	return client.NewGRPCClient(a.config.ServerEndpointAddr, a.dialOpts...)
}

func (a *App) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.config.CallTimeout)
}
