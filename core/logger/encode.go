package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// encoder renders an entry as a single line without the trailing newline.
type encoder interface {
	encode(e entry, order []string) ([]byte, error)
	// structured reports whether the output is meant for machines, which
	// get extra fields such as ts_unix_nano.
	structured() bool
}

type jsonEncoder struct{}

func (jsonEncoder) structured() bool { return true }

func (jsonEncoder) encode(e entry, order []string) ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, key := range sortKeys(e, order) {
		if i > 0 {
			b.WriteByte(',')
		}
		val, err := json.Marshal(e[key])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", key, err)
		}
		b.WriteString(strconv.Quote(key))
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// kvEncoder writes key=value pairs for terminals.
type kvEncoder struct{}

func (kvEncoder) structured() bool { return false }

func (kvEncoder) encode(e entry, order []string) ([]byte, error) {
	var b bytes.Buffer
	for i, key := range sortKeys(e, order) {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(kvValue(e[key]))
	}
	return b.Bytes(), nil
}

func kvValue(v any) string {
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	if strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

// sortKeys lists keys named in order first, in that order, then the rest alphabetically.
func sortKeys(e entry, order []string) []string {
	keys := make([]string, 0, len(e))
	known := make(map[string]bool, len(order))
	for _, k := range order {
		if _, ok := e[k]; ok && !known[k] {
			keys = append(keys, k)
		}
		known[k] = true
	}
	head := len(keys)
	for k := range e {
		if !known[k] {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys[head:])
	return keys
}
