package logger

import (
	"log/slog"
	"strings"
)

// enums lists the closed vocabularies of well-known keys. Values outside a vocabulary
// are kept for "status" and dropped for the other keys.
var enums = map[string]map[string]bool{
	"status":  set("ok", "fail", "skip", "retry", "rate_limited", "cancelled"),
	"outcome": set("ok", "fail", "cancelled", "interrupted", "rate_limited"),
	"pending": set("string", "choice", "date"),
	"by":      set("user", "admin", "external", "shutdown"),
}

func set(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// levelName renders a level the way log lines spell it. Levels above ERROR print as FATAL.
func levelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < slog.LevelWarn:
		return "INFO"
	case l < slog.LevelError:
		return "WARN"
	case l == slog.LevelError:
		return "ERROR"
	}
	return "FATAL"
}

// parseLevel maps a config level name to a slog level, INFO when unknown.
func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// normalizeEnums lowercases vocabulary fields and drops values no reader would expect.
func normalizeEnums(e entry) {
	for key, allowed := range enums {
		raw, ok := e[key].(string)
		if !ok || raw == "" {
			continue
		}
		v := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case allowed[v]:
			e[key] = v
		case key == "status":
			e[key] = v
		default:
			delete(e, key)
		}
	}
}

var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "ts_unix_nano",
	"update_id", "user_id", "chat_id", "chat_type", "handler",
	"session", "pending", "effect", "outcome", "by",
	"op", "cb_key", "payload", "lang", "duration_ms",
	"messages", "kb", "count", "sessions", "pending_count",
	"username", "mode", "listen", "public_url", "http_code",
	"db", "host", "port",
	"err", "err_code", "cause", "retryable", "attempts", "backoff_ms",
	"rate_limited", "collapsed", "repeats", "injected", "stack",
}
