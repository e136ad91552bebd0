package logger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"slices"
	"strings"
	"time"
)

const timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"

// entry is one log line before encoding: flat dotted keys to normalized values.
type entry map[string]any

func (e entry) setDefault(key string, v any) {
	if _, ok := e[key]; !ok {
		e[key] = v
	}
}

func (e entry) text(key string) string {
	switch v := e[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

type handlerOptions struct {
	level    slog.Leveler
	out      *lineWriter
	enc      encoder
	keyOrder []string
	// stacks attaches a goroutine stack to ERROR records lacking one.
	stacks bool
}

// handler is the slog.Handler behind L. Records become flat entries enriched
// with the correlation fields of the context.
type handler struct {
	opts   *handlerOptions
	attrs  []slog.Attr
	prefix string
}

func newHandler(opts handlerOptions) *handler {
	if opts.level == nil {
		opts.level = slog.LevelInfo
	}
	if opts.enc == nil {
		opts.enc = jsonEncoder{}
	}
	if opts.keyOrder == nil {
		opts.keyOrder = defaultKeyOrder
	}
	return &handler{opts: &opts}
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.level.Level()
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	if h.opts.out == nil {
		return errors.New("logger: writer not initialized")
	}
	e := h.entry(ctx, r)
	b, err := h.opts.enc.encode(e, h.opts.keyOrder)
	if err != nil {
		return err
	}
	return h.opts.out.Write(r.Level, append(b, '\n'))
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = slices.Clip(h.attrs)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, prefixed(h.prefix, a))
	}
	return &clone
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = join(h.prefix, name)
	return &clone
}

// entry builds the flat field set for r. Record attrs win over handler attrs,
// and both win over context metadata.
func (h *handler) entry(ctx context.Context, r slog.Record) entry {
	ts := r.Time.UTC()
	e := entry{
		"ts":    ts.Truncate(time.Millisecond).Format(timeFormatMillis),
		"level": levelName(r.Level),
	}
	if h.opts.enc.structured() {
		e["ts_unix_nano"] = ts.UnixNano()
	}
	for _, a := range h.attrs {
		e.add("", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		e.add(h.prefix, a)
		return true
	})
	for _, a := range MetaFrom(ctx).fields() {
		if v, ok := e[a.Key]; !ok || v == "" {
			e[a.Key] = a.Value.Any()
		}
	}

	if rid := e.text("rid"); rid != "" {
		if short := CompactRID(rid); short != rid {
			if h.opts.enc.structured() {
				e.setDefault("rid_full", rid)
			}
			e["rid"] = short
		}
	}
	if e.text("event") == "" {
		e["event"] = cmp.Or(r.Message, "unknown")
	}
	if e.text("component") == "" {
		e["component"] = "app"
	}
	if h.opts.stacks && r.Level >= slog.LevelError {
		e.setDefault("stack", string(debug.Stack()))
	}
	normalizeEnums(e)
	e.prune()
	return e
}

// add flattens a, possibly a group, into e under prefix.
func (e entry) add(prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	key := join(prefix, a.Key)
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			e.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, val, ok := fieldValue(key, v); ok {
		e[k] = val
	}
}

func (e entry) prune() {
	for k, v := range e {
		if v == nil || v == "" {
			delete(e, k)
		}
	}
}

// fieldValue converts v into a JSON friendly value. Durations become integer
// milliseconds under a key ending in _ms.
func fieldValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return msKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		return msKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, strings.TrimSpace(x.String()), true
	case string:
		return key, strings.TrimSpace(x), true
	default:
		return key, fmt.Sprint(x), true
	}
}

func msKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	}
	return key + "_ms"
}

func prefixed(prefix string, a slog.Attr) slog.Attr {
	if prefix == "" {
		return a
	}
	return slog.Attr{Key: join(prefix, a.Key), Value: a.Value}
}

func join(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}
