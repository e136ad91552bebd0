// Package bootstrap brings up the infrastructure a bot needs before it can poll.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/flowbot/core/config"
	coredatabase "github.com/m3rciful/flowbot/core/database"
	"github.com/m3rciful/flowbot/core/logger"
)

// Options holds the configuration and, for tests, replacement steps.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	LoggerInit func(*coreconfig.Config) error
	Migrate    func(context.Context, coredatabase.Config) error
	Connect    func(context.Context, coredatabase.Config) (*sqlx.DB, error)
}

// Result is what the pipeline produced.
type Result struct {
	DB *sqlx.DB
}

// stage is one named pipeline step.
type stage struct {
	name string
	run  func(ctx context.Context) error
}

// Run initializes logging, migrates the schema and connects, in that order.
// The first failing stage stops the pipeline.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config")
	}
	initLog := opts.LoggerInit
	if initLog == nil {
		initLog = logger.InitLogger
	}
	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}

	res := &Result{}
	stages := []stage{
		{"logger", func(context.Context) error { return initLog(opts.Config) }},
		{"migrations", func(ctx context.Context) error { return migrate(ctx, opts.Database) }},
		{"database", func(ctx context.Context) (err error) {
			res.DB, err = connect(ctx, opts.Database)
			return err
		}},
	}
	for _, s := range stages {
		start := time.Now()
		if err := s.run(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap: %s failed: %w", s.name, err)
		}
		logger.Debug(ctx, "app", "bootstrap.stage",
			slog.String("stage", s.name),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	}
	return res, nil
}
