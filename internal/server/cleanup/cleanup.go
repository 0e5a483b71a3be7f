// Package cleanup purges expired denylist entries and stale refresh-token
// records once a day at a fixed local time.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/reqctx"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// Table names used in reports, logs and metric labels.
const (
	TableBlacklist     = "blacklisted_tokens"
	TableRefreshTokens = "refresh_tokens"
)

// SweepResult is the outcome of one table sweep.
type SweepResult struct {
	Table   string
	Deleted int64
	Err     error
}

// SweepReport collects the results of one cleanup run. Sweeps are
// independent; one failing does not stop the other.
type SweepReport struct {
	StartedAt time.Time
	Results   []SweepResult
}

// Failed reports whether any sweep failed.
func (r SweepReport) Failed() bool {
	for _, res := range r.Results {
		if res.Err != nil {
			return true
		}
	}
	return false
}

// Deleted returns the total number of removed rows.
func (r SweepReport) Deleted() int64 {
	var n int64
	for _, res := range r.Results {
		n += res.Deleted
	}
	return n
}

type Scheduler struct {
	repomanager repomanager.RepositoryManager
	at          timex.ClockTime
	timeout     time.Duration
	metrics     *metrics.Metrics
	log         logging.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func NewScheduler(m repomanager.RepositoryManager, at timex.ClockTime, timeout time.Duration, mtr *metrics.Metrics, log logging.Logger) *Scheduler {
	return &Scheduler{
		repomanager: m,
		at:          at,
		timeout:     timeout,
		metrics:     mtr,
		log:         log.With("module", "cleanup"),
		now:         time.Now,
		after:       time.After,
	}
}

// SystemActor is bound to the context of every sweep so that nested log
// lines are attributed to the scheduler.
var SystemActor = reqctx.Actor{ID: "system:cleanup", Role: "SYSTEM"}

// Sweep runs both sweeps once, concurrently, and returns what happened.
// Failures are logged and counted, never returned as an error.
func (s *Scheduler) Sweep(ctx context.Context) SweepReport {
	now := s.now()
	report := SweepReport{StartedAt: now, Results: make([]SweepResult, 2)}

	_ = reqctx.Run(ctx, &SystemActor, func(ctx context.Context) error {
		var g reqctx.Group
		g.Go(ctx, func(ctx context.Context) error {
			report.Results[0] = s.sweep(ctx, TableBlacklist, func(ctx context.Context) (int64, error) {
				return s.repomanager.Blacklist(s.repomanager.DB()).DeleteExpired(ctx, now)
			})
			return nil
		})
		g.Go(ctx, func(ctx context.Context) error {
			report.Results[1] = s.sweep(ctx, TableRefreshTokens, func(ctx context.Context) (int64, error) {
				return s.repomanager.RefreshTokens(s.repomanager.DB()).DeleteRevokedOrExpired(ctx, now)
			})
			return nil
		})
		g.Wait()
		return nil
	})

	return report
}

func (s *Scheduler) sweep(ctx context.Context, table string, fn func(ctx context.Context) (int64, error)) (res SweepResult) {
	res.Table = table

	defer func() {
		if p := recover(); p != nil {
			res.Err = panicError{p}
		}
		if res.Err != nil {
			s.metrics.CleanupFailures.WithLabelValues(table).Inc()
			s.log.Error(ctx, "cleanup sweep failed", "table", table, "error", res.Err)
			return
		}
		s.metrics.CleanupDeleted.WithLabelValues(table).Add(float64(res.Deleted))
		s.log.Info(ctx, "cleanup sweep done", "table", table, "deleted", res.Deleted)
	}()

	ctx, cancel := dbx.WithTimeout(ctx, s.timeout)
	defer cancel()

	res.Deleted, res.Err = fn(ctx)
	return res
}

// Run sweeps at every occurrence of the configured time of day until ctx is
// done. A failed run is simply retried at the next occurrence. A sweep that
// has started is not cut short by ctx; each sweep is bounded by the store
// timeout instead.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		now := s.now()
		next := s.at.Next(now)
		s.log.Debug(ctx, "next cleanup scheduled", "at", next)

		select {
		case <-ctx.Done():
			return
		case <-s.after(next.Sub(now)):
		}

		s.Sweep(reqctx.Detach(ctx))
	}
}

type panicError struct{ v any }

func (p panicError) Error() string { return fmt.Sprintf("panic: %v", p.v) }
