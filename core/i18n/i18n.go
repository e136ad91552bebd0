// Package i18n loads YAML locale files and resolves dotted message keys.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var builtin embed.FS

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Bundle holds messages for several languages with a default fallback.
type Bundle struct {
	mu          sync.RWMutex
	defaultLang string
	texts       map[string]map[string]string
	lists       map[string]map[string][]string
}

// NewBundle returns an empty bundle falling back to defaultLang.
func NewBundle(defaultLang string) *Bundle {
	lang := NormalizeLang(defaultLang)
	if lang == "" {
		lang = "en"
	}
	return &Bundle{
		defaultLang: lang,
		texts:       make(map[string]map[string]string),
		lists:       make(map[string]map[string][]string),
	}
}

// Load builds a bundle from the built-in runtime locales merged with extra locale trees.
func Load(defaultLang string, extra ...fs.FS) (*Bundle, error) {
	b := NewBundle(defaultLang)
	sub, err := fs.Sub(builtin, "locales")
	if err != nil {
		return nil, fmt.Errorf("i18n: builtin locales: %w", err)
	}
	if err := b.LoadFS(sub); err != nil {
		return nil, err
	}
	for _, fsys := range extra {
		if fsys == nil {
			continue
		}
		if err := b.LoadFS(fsys); err != nil {
			return nil, err
		}
	}
	if !b.Has(b.defaultLang) {
		return nil, fmt.Errorf("i18n: default language %q has no messages", b.defaultLang)
	}
	return b, nil
}

// LoadFS merges every <lang>.yaml or <lang>.yml file at the root of fsys.
func (b *Bundle) LoadFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("i18n: read locales: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := path.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return fmt.Errorf("i18n: read %s: %w", e.Name(), err)
		}
		if err := b.Add(strings.TrimSuffix(e.Name(), ext), data); err != nil {
			return err
		}
	}
	return nil
}

// Add merges a YAML document of nested messages into lang. Later keys win.
func (b *Bundle) Add(lang string, data []byte) error {
	lang = NormalizeLang(lang)
	if lang == "" {
		return fmt.Errorf("i18n: empty language")
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("i18n: parse %s: %w", lang, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	texts := b.texts[lang]
	if texts == nil {
		texts = make(map[string]string)
		b.texts[lang] = texts
	}
	lists := b.lists[lang]
	if lists == nil {
		lists = make(map[string][]string)
		b.lists[lang] = lists
	}
	flatten("", doc, texts, lists)
	return nil
}

func flatten(prefix string, node map[string]any, texts map[string]string, lists map[string][]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, texts, lists)
		case []any:
			items := make([]string, 0, len(val))
			for _, item := range val {
				items = append(items, fmt.Sprint(item))
			}
			lists[key] = items
		case nil:
		default:
			texts[key] = fmt.Sprint(val)
		}
	}
}

// T resolves key for lang, then for the default language, then returns the key itself.
// {{name}} placeholders are replaced from params; unknown placeholders stay as is.
func (b *Bundle) T(lang, key string, params map[string]string) string {
	text, ok := b.lookup(lang, key)
	if !ok {
		return key
	}
	if len(params) == 0 {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := params[name]; ok {
			return v
		}
		return m
	})
}

// List resolves a list-valued key with the same fallback as T. Missing keys yield nil.
func (b *Bundle) List(lang, key string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, l := range b.candidates(lang) {
		if items, ok := b.lists[l][key]; ok {
			out := make([]string, len(items))
			copy(out, items)
			return out
		}
	}
	return nil
}

func (b *Bundle) lookup(lang, key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, l := range b.candidates(lang) {
		if text, ok := b.texts[l][key]; ok {
			return text, true
		}
	}
	return "", false
}

func (b *Bundle) candidates(lang string) []string {
	lang = NormalizeLang(lang)
	if lang == "" || lang == b.defaultLang {
		return []string{b.defaultLang}
	}
	return []string{lang, b.defaultLang}
}

// Has reports whether any message is loaded for lang.
func (b *Bundle) Has(lang string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.texts[NormalizeLang(lang)]) > 0
}

// Default returns the fallback language.
func (b *Bundle) Default() string { return b.defaultLang }

// Languages lists loaded languages in sorted order.
func (b *Bundle) Languages() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.texts))
	for l := range b.texts {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Match returns lang when the bundle supports it, else the default language.
// It accepts Telegram codes such as "en-US".
func (b *Bundle) Match(lang string) string {
	if l := NormalizeLang(lang); l != "" && b.Has(l) {
		return l
	}
	return b.defaultLang
}

// NormalizeLang lowercases a language tag and drops its region.
func NormalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}
