package database

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/m3rciful/flowbot/core/logger"
)

const migrateComponent = "db.migrate"

// migration is one *.up.sql file.
type migration struct {
	version uint64
	name    string
}

// plan lists the up migrations found in dir, ordered by version.
type plan struct {
	dir   string
	files []migration
}

func loadPlan(dir string) (plan, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "migrations"
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return plan{}, fmt.Errorf("migrations path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return plan{}, fmt.Errorf("migrations dir: %w", err)
	}
	p := plan{dir: abs}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		p.files = append(p.files, migration{version: parseVersion(e.Name()), name: e.Name()})
	}
	slices.SortFunc(p.files, func(a, b migration) int {
		return cmp.Or(cmp.Compare(a.version, b.version), strings.Compare(a.name, b.name))
	})
	return p, nil
}

func (p plan) sourceURL() string { return "file://" + filepath.ToSlash(p.dir) }

// between returns the file names with from < version <= to.
func (p plan) between(from, to uint64) []string {
	var names []string
	for _, m := range p.files {
		if m.version > from && m.version <= to {
			names = append(names, m.name)
		}
	}
	return names
}

func (p plan) names() []string {
	return p.between(0, ^uint64(0))
}

// parseVersion reads the numeric prefix of "0002_notes.up.sql". Unnumbered files get 0.
func parseVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

// migrateLog forwards golang-migrate's own messages to the debug log.
type migrateLog struct{ ctx context.Context }

func (l migrateLog) Printf(format string, v ...any) {
	logger.Debug(l.ctx, migrateComponent, "migrate.log",
		slog.String("msg", strings.TrimSpace(fmt.Sprintf(format, v...))))
}

func (migrateLog) Verbose() bool { return logger.Enabled(slog.LevelDebug) }

// RunMigrations applies every pending up migration. A dirty schema version is an error.
func RunMigrations(ctx context.Context, cfg Config) error {
	if err := cfg.Normalize(); err != nil {
		return fmt.Errorf("db config: %w", err)
	}
	if cfg.Driver == DriverPostgres {
		wait, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := WaitForDB(wait, cfg)
		cancel()
		if err != nil {
			logger.Error(ctx, migrateComponent, "db.wait", slog.String("err", err.Error()))
			return fmt.Errorf("database not ready: %w", err)
		}
	}

	p, err := loadPlan(cfg.MigrationsPath)
	if err != nil {
		logger.Error(ctx, migrateComponent, "resolve", slog.String("err", err.Error()))
		return err
	}
	logger.Debug(ctx, migrateComponent, "resolve",
		append([]slog.Attr{
			slog.String("path", p.dir),
			slog.String("driver", cfg.Driver),
		}, filesAttrs(p.names())...)...,
	)

	m, err := migrate.New(p.sourceURL(), cfg.MigrateURL())
	if err != nil {
		logger.Error(ctx, migrateComponent, "open", slog.String("err", err.Error()))
		return fmt.Errorf("open migrations: %w", err)
	}
	m.Log = migrateLog{ctx: ctx}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn(ctx, migrateComponent, "close", slog.String("err", errors.Join(srcErr, dbErr).Error()))
		}
	}()

	from, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		from = 0
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case dirty:
		logger.Error(ctx, migrateComponent, "dirty", slog.Uint64("version", uint64(from)))
		return fmt.Errorf("schema version %d is dirty; fix it and force the version", from)
	}

	stop := context.AfterFunc(ctx, func() {
		select {
		case m.GracefulStop <- true:
		default:
		}
	})
	defer stop()

	start := time.Now()
	upErr := m.Up()
	took := logger.RoundMS(time.Since(start))
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		logger.Error(ctx, migrateComponent, "apply",
			slog.String("err", upErr.Error()),
			slog.Duration("duration", took),
		)
		return fmt.Errorf("apply migrations: %w", upErr)
	}

	to := from
	if v, _, err := m.Version(); err == nil {
		to = v
	}
	applied := p.between(uint64(from), uint64(to))
	if len(applied) > 0 {
		logger.Debug(ctx, migrateComponent, "apply", filesAttrs(applied)...)
	}
	logger.Info(ctx, migrateComponent, "summary",
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", len(applied)),
		slog.Duration("duration", took),
	)
	return nil
}

func filesAttrs(names []string) []slog.Attr {
	attrs := []slog.Attr{slog.Int("files_total", len(names))}
	preview, truncated := logger.SummarizeStrings(names, 6)
	if preview != "" {
		attrs = append(attrs, slog.String("files_preview", preview))
	}
	if truncated {
		attrs = append(attrs, slog.Bool("files_truncated", true))
	}
	return attrs
}
