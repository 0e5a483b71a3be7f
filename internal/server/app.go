// Package server initializes and runs the authkeeper server: storage, the
// gRPC endpoint, the metrics endpoint and the daily cleanup.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/cleanup"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/authkeeper/internal/server/grpc"
)

// Stack is everything built from a Config. The CLI reuses it for the
// maintenance commands.
type Stack struct {
	Repos   repomanager.RepositoryManager
	Issuer  *auth.Issuer
	Auth    *services.AuthService
	Cleanup *cleanup.Scheduler
	Metrics *metrics.Metrics

	closers []func() error
}

// Close releases database and Redis connections.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// NewStack opens storage, applies migrations and builds the services.
func NewStack(ctx context.Context, c *config.Config, logger logging.Logger) (*Stack, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st := &Stack{Metrics: metrics.New()}

	repos, err := st.openRepositories(ctx, c, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	st.Repos = repos

	if err := repos.RunMigrations(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	hasher, err := cryptox.NewArgon2(cryptox.DefaultParams())
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	lookup, err := cryptox.NewLookupHasher([]byte(c.LookupKey))
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	st.Issuer, err = auth.NewIssuer([]byte(c.SecretKey), c.AccessTokenValidityDuration)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	st.Auth = services.NewAuthService(repos, st.Issuer, hasher, lookup, st.Metrics, logger, c)
	st.Cleanup = cleanup.NewScheduler(repos, c.CleanupAt, c.StoreTimeout, st.Metrics, logger)
	return st, nil
}

func (s *Stack) openRepositories(ctx context.Context, c *config.Config, logger logging.Logger) (repomanager.RepositoryManager, error) {
	if c.DatabaseDSN == memory.DSN {
		logger.Warn(ctx, "using in-memory store, data is lost on exit")
		return memory.NewRepositoryManager(), nil
	}

	db, err := repomanager.Open(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	s.closers = append(s.closers, db.Close)

	if err := ping(ctx, c.StoreTimeout, db); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}

	var opts []repomanager.Option
	if c.RedisAddr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{c.RedisAddr}})
		s.closers = append(s.closers, client.Close)

		pctx, cancel := context.WithTimeout(ctx, c.StoreTimeout)
		defer cancel()
		if err := client.Ping(pctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		opts = append(opts, repomanager.WithRedisBlacklist(client))
		logger.Info(ctx, "access token denylist stored in redis", "addr", c.RedisAddr)
	}

	return repomanager.NewPostgresRepositoryManager(db, opts...)
}

func ping(ctx context.Context, timeout time.Duration, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return db.PingContext(ctx)
}

type App struct {
	config *config.Config
	logger logging.Logger
	stack  *Stack
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)

	stack, err := NewStack(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	return &App{config: c, logger: logger, stack: stack}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.stack.Auth, app.stack.Issuer)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startMetricsServer(ctx context.Context, cancelFunc context.CancelFunc) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.stack.Metrics.Handler())
	srv := &http.Server{Addr: app.config.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	app.logger.Info(ctx, "Starting metrics server", "address", app.config.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	if app.config.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startMetricsServer(ctx, cancelFunc)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.logger.Info(ctx, "Cleanup scheduled daily", "at", app.config.CleanupAt.String())
		app.stack.Cleanup.Run(ctx)
	}()

	wg.Wait()

	if err := app.stack.Close(); err != nil {
		app.logger.Error(context.Background(), "closing storage", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
