package router

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/flow"
	"github.com/m3rciful/flowbot/core/logger"
	tghelpers "github.com/m3rciful/flowbot/core/telegram/helpers"
	"github.com/m3rciful/flowbot/core/telegram/middleware"
	"github.com/m3rciful/flowbot/core/telegram/netutil"
)

// summary collects the single handler.handled line written per routed update.
type summary struct {
	c      tele.Context
	name   string
	start  time.Time
	status string
	attrs  []slog.Attr
}

func begin(c tele.Context, name string, start time.Time) *summary {
	tghelpers.WithHandler(c, name)
	return &summary{c: c, name: name, start: start}
}

func (s *summary) with(attrs ...slog.Attr) *summary {
	s.attrs = append(s.attrs, attrs...)
	return s
}

// as overrides the status derived from the handler error.
func (s *summary) as(status string) *summary {
	s.status = status
	return s
}

func (s *summary) run(fn func() error) error {
	err := fn()
	s.done(err)
	return err
}

func (s *summary) done(err error) {
	msgs, kb := middleware.GetCounters(s.c)
	status, outcome := "ok", "ok"
	if err != nil {
		status, outcome = "fail", "fail"
	}
	if s.status != "" {
		status = s.status
	}
	attrs := append([]slog.Attr{
		slog.String("status", status),
		slog.String("outcome", outcome),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", logger.RoundMS(time.Since(s.start))),
	}, s.attrs...)
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errCode(err)),
		)
	}
	logger.LogEvent(tghelpers.BuildContext(s.c), logger.Component("tg"), slog.LevelInfo, "handler.handled", attrs...)
}

// handlerName turns a command, menu key or callback key into a log-friendly name.
func handlerName(raw string) string {
	raw = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "/"))
	if raw == "" {
		return "unknown"
	}
	return strings.Join(strings.Fields(raw), "_")
}

// errCode names err for dashboards: flow failures and Telegram failures get
// stable codes, anything else is named after its type.
func errCode(err error) string {
	var pe *flow.PanicError
	switch {
	case errors.Is(err, flow.ErrNoUser):
		return "NO_USER"
	case errors.Is(err, flow.ErrFlowInterrupted):
		return "FLOW_INTERRUPTED"
	case errors.As(err, &pe):
		return "FLOW_PANIC"
	}
	if f := netutil.Classify(err); f.Kind != netutil.KindUnknown {
		return "TG_" + strings.ToUpper(f.Kind)
	}
	if c, ok := err.(interface{ Code() string }); ok {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(t.Name())
}
