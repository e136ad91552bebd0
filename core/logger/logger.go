package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/flowbot/core/buildinfo"
	coreconfig "github.com/m3rciful/flowbot/core/config"
)

var (
	initOnce sync.Once

	closeMu sync.Mutex
	closed  bool
	out     *lineWriter
	files   []io.Closer

	level       slog.LevelVar
	debugSample = newSampler(1, 50)
	trace       bool

	// L is the base logger; component loggers derive from it.
	L *slog.Logger
)

// options is the logging setup resolved from config.
type options struct {
	level   slog.Level
	enc     encoder
	order   []string
	num     int
	den     int
	stacks  bool
	profile string
	// botFile receives every record, errorsFile only WARN and above.
	botFile    string
	errorsFile string
}

func resolve(cfg *coreconfig.Config) options {
	o := options{
		level:   slog.LevelInfo,
		enc:     jsonEncoder{},
		order:   defaultKeyOrder,
		num:     1,
		den:     50,
		profile: "prod",
	}
	if cfg == nil {
		return o
	}
	lc := cfg.Logging
	o.level = parseLevel(lc.Level)
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		o.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		o.enc = kvEncoder{}
	case "json":
	default:
		if o.profile == "debug" || o.profile == "dev" {
			o.enc = kvEncoder{}
		}
	}
	if order := splitList(lc.KeysOrder); len(order) > 0 && lc.KeysOrder != "default" {
		o.order = order
	}
	if raw := strings.TrimSpace(lc.DebugSample); raw != "" {
		num, den := parseRatio(raw)
		switch {
		case num == 0 && den == 0:
			o.num, o.den = 0, 0
		case num > 0 && den > 0:
			o.num, o.den = num, den
		}
	}
	switch strings.ToLower(strings.TrimSpace(lc.Stacks)) {
	case "on", "true", "error", "errors":
		o.stacks = true
	}
	if dir := strings.TrimSpace(lc.Dir); dir != "" {
		if f := strings.TrimSpace(lc.BotFile); f != "" {
			o.botFile = filepath.Join(dir, f)
		}
		if f := strings.TrimSpace(lc.ErrorsFile); f != "" {
			o.errorsFile = filepath.Join(dir, f)
		}
	}
	return o
}

// InitLogger installs the process logger described by cfg. Only the first call has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		o := resolve(cfg)
		var sinks []sink
		sinks, files, err = openSinks(o)
		if err != nil {
			return
		}
		level.Set(o.level)
		debugSample.set(o.num, o.den)
		trace = envFlag("TRACE") || envFlag("LOG_TRACE")

		out = newLineWriter(sinks)
		L = slog.New(newHandler(handlerOptions{
			level:    &level,
			out:      out,
			enc:      o.enc,
			keyOrder: o.order,
			stacks:   o.stacks,
		}))
		slog.SetDefault(L)

		Info(context.Background(), "app", "startup",
			slog.String("go_version", runtime.Version()),
			slog.String("build", buildinfo.String()),
			slog.String("profile", o.profile),
			slog.String("log_level", o.level.String()),
		)
	})
	return err
}

func openSinks(o options) ([]sink, []io.Closer, error) {
	sinks := []sink{output(os.Stdout, slog.LevelDebug)}
	var opened []io.Closer
	for _, f := range []struct {
		path  string
		floor slog.Level
	}{{o.botFile, slog.LevelDebug}, {o.errorsFile, slog.LevelWarn}} {
		if f.path == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("logger: create log dir: %w", err)
		}
		fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			for _, c := range opened {
				_ = c.Close()
			}
			return nil, nil, fmt.Errorf("logger: open %s: %w", f.path, err)
		}
		sinks = append(sinks, output(fh, f.floor))
		opened = append(opened, fh)
	}
	return sinks, opened, nil
}

// Shutdown flushes pending lines and closes log files. Calls after the first are no-ops.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	if out != nil {
		errs = append(errs, out.Flush(), out.Close())
	}
	for _, c := range files {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Background returns a fresh root context for logs outside any update.
func Background() context.Context { return context.Background() }

// LogEvent writes event through logg, falling back to the context logger and then L.
func LogEvent(ctx context.Context, logg *slog.Logger, lvl slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, lvl, "", attrs...)
}

// Component returns L tagged with component name, or nil before InitLogger.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With(slog.String("component", name))
}

func logAt(ctx context.Context, component string, lvl slog.Level, event string, attrs []slog.Attr) {
	logg := Component(component)
	if logg == nil {
		if logg = FromContext(ctx); logg == nil {
			return
		}
		if c := strings.TrimSpace(component); c != "" {
			logg = logg.With(slog.String("component", c))
		}
	}
	LogEvent(ctx, logg, lvl, event, attrs...)
}

// Debug logs event at DEBUG for component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	logAt(ctx, component, slog.LevelDebug, event, attrs)
}

// Info logs event at INFO for component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	logAt(ctx, component, slog.LevelInfo, event, attrs)
}

// Warn logs event at WARN for component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	logAt(ctx, component, slog.LevelWarn, event, attrs)
}

// Error logs event at ERROR for component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	logAt(ctx, component, slog.LevelError, event, attrs)
}

// Enabled reports whether lines at lvl are written at all.
func Enabled(lvl slog.Level) bool {
	return L != nil && lvl >= level.Level()
}

// ShouldSampleDebug reports whether a high-volume debug line should be written.
// TRACE=1 in the environment disables sampling.
func ShouldSampleDebug() bool {
	return trace || debugSample.allow()
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
