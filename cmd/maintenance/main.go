// Package main is the entrypoint for the maintenance command.
//
// The command consolidates low-frequency cleanup tasks into a single binary
// that a cron scheduler invokes with a task name. Each task prunes rows the
// request path no longer reads: expired sessions, usage counter windows that
// have rolled over, and stale admin rate-limit windows.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"wardrobe/internal/config"
	"wardrobe/internal/db"
)

// Retention periods. Expired rows are kept for a short grace window so
// recent denials can still be inspected when debugging a support report.
const (
	// sessionRetention keeps expired session rows briefly after expiry.
	sessionRetention = 24 * time.Hour

	// counterRetention keeps rolled-over usage counters long enough to
	// answer "why was I denied last week" support questions.
	counterRetention = 35 * 24 * time.Hour

	// rateLimitRetention keeps expired admin rate-limit windows for an hour.
	rateLimitRetention = time.Hour
)

// Task names accepted by the -task flag.
const (
	taskSessions   = "sessions"
	taskCounters   = "usage-counters"
	taskRateLimits = "admin-rate-limits"
	taskAll        = "all"
)

// SessionPruner deletes expired session rows.
type SessionPruner interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CounterPruner deletes usage counter rows whose window has ended.
type CounterPruner interface {
	PruneExpired(ctx context.Context, before time.Time) (int64, error)
}

// RateLimitPruner deletes expired admin rate-limit windows.
type RateLimitPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Handler routes a task name to the pruner that serves it.
type Handler struct {
	Sessions   SessionPruner
	Counters   CounterPruner
	RateLimits RateLimitPruner
	Logger     *slog.Logger
}

// Run executes the named task (or every task for "all") and returns the
// total number of rows removed.
func (h *Handler) Run(ctx context.Context, task string, now time.Time) (int64, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var total int64
	run := func(name string, fn func() (int64, error)) error {
		removed, err := fn()
		if err != nil {
			logger.ErrorContext(ctx, "maintenance task failed", "task", name, "error", err)
			return err
		}
		logger.InfoContext(ctx, "maintenance task completed", "task", name, "rows_removed", removed)
		total += removed
		return nil
	}

	switch task {
	case taskSessions:
		return total, run(task, func() (int64, error) {
			return h.Sessions.DeleteExpired(ctx, now.Add(-sessionRetention))
		})
	case taskCounters:
		return total, run(task, func() (int64, error) {
			return h.Counters.PruneExpired(ctx, now.Add(-counterRetention))
		})
	case taskRateLimits:
		return total, run(task, func() (int64, error) {
			return h.RateLimits.Prune(ctx, now.Add(-rateLimitRetention))
		})
	case taskAll:
		if err := run(taskSessions, func() (int64, error) {
			return h.Sessions.DeleteExpired(ctx, now.Add(-sessionRetention))
		}); err != nil {
			return total, err
		}
		if err := run(taskCounters, func() (int64, error) {
			return h.Counters.PruneExpired(ctx, now.Add(-counterRetention))
		}); err != nil {
			return total, err
		}
		return total, run(taskRateLimits, func() (int64, error) {
			return h.RateLimits.Prune(ctx, now.Add(-rateLimitRetention))
		})
	default:
		return 0, fmt.Errorf("unknown maintenance task %q", task)
	}
}

func main() {
	task := flag.String("task", taskAll, "maintenance task to run: sessions, usage-counters, admin-rate-limits, all")
	flag.Parse()

	if err := run(*task); err != nil {
		slog.Error("maintenance run failed", "error", err)
		os.Exit(1)
	}
}

func run(task string) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "maintenance")

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return fmt.Errorf("parsing database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	h := &Handler{
		Sessions:   db.NewSessionRepo(pool),
		Counters:   db.NewUsageCounterRepo(pool),
		RateLimits: db.NewAdminRateLimitRepo(pool),
		Logger:     logger,
	}

	total, err := h.Run(ctx, task, time.Now().UTC())
	if err != nil {
		return err
	}

	logger.Info("maintenance run complete", "task", task, "rows_removed", total)
	return nil
}
