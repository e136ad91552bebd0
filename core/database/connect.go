package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/flowbot/core/logger"
)

const (
	connectTimeout = 5 * time.Second
	waitInterval   = 2 * time.Second
)

// Connect opens a pooled connection and pings it within connectTimeout.
func Connect(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("db config: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN())
	took := logger.RoundMS(time.Since(start))
	if err != nil {
		logger.Error(ctx, "db", "db.connect",
			append(cfg.logAttrs(), slog.Duration("duration", took), slog.String("err", err.Error()))...)
		return nil, fmt.Errorf("db connect: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)

	logger.Info(ctx, "db", "db.connect",
		append(cfg.logAttrs(), slog.Int("pool_open", cfg.MaxConnections), slog.Duration("duration", took))...)
	return db, nil
}

func (c Config) logAttrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("driver", c.Driver)}
	if c.Driver == DriverSQLite {
		return append(attrs, slog.String("db", c.Path))
	}
	return append(attrs,
		slog.String("host", c.Host),
		slog.String("port", c.Port),
		slog.String("db", c.Name),
	)
}

// WaitForDB pings the database every waitInterval until it answers or ctx is done.
func WaitForDB(ctx context.Context, cfg Config) error {
	db, err := sqlx.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer db.Close()

	tick := time.NewTicker(waitInterval)
	defer tick.Stop()
	for attempt := 1; ; attempt++ {
		err = db.PingContext(ctx)
		if err == nil {
			return nil
		}
		logger.Debug(ctx, "db", "db.wait", slog.Int("attempt", attempt), slog.String("err", err.Error()))
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for database: %w", err)
		case <-tick.C:
		}
	}
}
