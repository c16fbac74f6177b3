package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	coreconfig "github.com/m3rciful/captionrelay/core/config"
	"github.com/m3rciful/captionrelay/core/logger"
)

const (
	connectWait    = 30 * time.Second
	connectBackoff = 2 * time.Second
	attemptTimeout = 5 * time.Second
)

// Connect opens the journal database, retrying until it answers a ping or
// connectWait elapses, then sizes the pool.
func Connect(cfg coreconfig.DatabaseConfig) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectWait)
	defer cancel()

	start := time.Now()
	db, attempts, err := dial(ctx, cfg.DSN())
	attrs := []slog.Attr{
		slog.String("event", "db.connect"),
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
		slog.Int("attempts", attempts),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		logger.DB.LogAttrs(ctx, slog.LevelError, "db connect failed",
			append(attrs, slog.String("status", "fail"), slog.String("err", err.Error()))...)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if n := cfg.MaxConnections; n > 0 {
		db.SetMaxOpenConns(n)
		db.SetMaxIdleConns(n)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	logger.DB.LogAttrs(ctx, slog.LevelInfo, "db connected",
		append(attrs, slog.String("status", "ok"), slog.Int("pool_open", cfg.MaxConnections))...)
	return db, nil
}

// dial connects and pings, backing off between failures until ctx is done.
func dial(ctx context.Context, dsn string) (*sqlx.DB, int, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		actx, cancel := context.WithTimeout(ctx, attemptTimeout)
		db, err := sqlx.ConnectContext(actx, "postgres", dsn)
		cancel()
		if err == nil {
			return db, attempt, nil
		}
		lastErr = err
		logger.DB.LogAttrs(ctx, slog.LevelWarn, "db not ready",
			slog.String("event", "db.connect"),
			slog.String("status", "retry"),
			slog.Int("attempt", attempt),
			slog.String("err", err.Error()),
		)

		select {
		case <-ctx.Done():
			return nil, attempt, fmt.Errorf("database not ready: %w", lastErr)
		case <-time.After(connectBackoff):
		}
	}
}
