package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/logger"
	"github.com/m3rciful/flowbot/core/telegram/commands"
)

// MenuItem is a reply-keyboard button. Labels maps language to the button text;
// a press on any of the labels runs Handler.
type MenuItem struct {
	Key     string
	Labels  map[string]string
	Handler tele.HandlerFunc
}

// Registry holds bot commands, callbacks, and main-menu buttons.
type Registry struct {
	commands         map[string]commands.Command
	callbacks        map[string]tele.HandlerFunc
	callbacksMu      sync.RWMutex
	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc

	menuMu     sync.RWMutex
	menu       []MenuItem
	menuLabels map[string]int
}

// NewRegistry creates an empty Registry with default fallbacks.
func NewRegistry() *Registry {
	return &Registry{
		commands:   make(map[string]commands.Command),
		callbacks:  make(map[string]tele.HandlerFunc),
		menuLabels: make(map[string]int),
		callbackNotFound: func(c tele.Context) error {
			_ = c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
			return nil
		},
	}
}

// RegisterCommand adds a command under name. Invalid and duplicate commands are logged and skipped.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) {
	ctx := context.Background()
	if r == nil {
		return
	}
	if err := cmd.Validate(name); err != nil {
		logger.Warn(ctx, "tg.wire", "register.command.skip",
			slog.String("name", name),
			slog.String("err", err.Error()),
		)
		return
	}
	if _, exists := r.commands[name]; exists {
		logger.Warn(ctx, "tg.wire", "register.command.duplicate", slog.String("name", name))
		return
	}
	r.commands[name] = cmd
}

// ListCommands returns the commands for the Bot API menu, sorted by name.
// With visibleOnly, hidden and admin-only commands are left out.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	var list []tele.Command
	for name, cmd := range r.commands {
		if visibleOnly && !cmd.Listed() {
			continue
		}
		// the Bot API takes command names without the leading slash
		list = append(list, tele.Command{Text: strings.TrimPrefix(name, "/"), Description: cmd.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// LookupCommand resolves the command at the start of text, by name or alias,
// and returns its canonical name. Arguments and a @botname suffix are ignored.
func (r *Registry) LookupCommand(text string) (string, commands.Command, bool) {
	name, _, ok := commands.Parse(text)
	if !ok {
		return "", commands.Command{}, false
	}
	if cmd, ok := r.commands[name]; ok {
		return name, cmd, true
	}
	for key, cmd := range r.commands {
		if cmd.Matches(name) {
			return key, cmd, true
		}
	}
	return "", commands.Command{}, false
}

// Commands returns all registered commands.
func (r *Registry) Commands() map[string]commands.Command {
	return r.commands
}

// RegisterCallback adds a callback handler mapped to its key.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if r == nil || key == "" || handler == nil {
		logger.Warn(context.Background(), "tg.wire", "register.callback.skip",
			slog.String("key", key),
			slog.Bool("handler_nil", handler == nil),
		)
		return errors.New("invalid callback registration")
	}
	r.callbacksMu.Lock()
	defer r.callbacksMu.Unlock()
	if _, exists := r.callbacks[key]; exists {
		logger.Warn(context.Background(), "tg.wire", "register.callback.duplicate", slog.String("key", key))
		return fmt.Errorf("callback already registered: %s", key)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback safely returns handler by key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.callbacksMu.RLock()
	defer r.callbacksMu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns sorted keys (for diagnostics).
func (r *Registry) ListCallbacks() []string {
	r.callbacksMu.RLock()
	defer r.callbacksMu.RUnlock()
	names := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// RegisterMenu adds a main-menu button. Labels must be unique across all items.
func (r *Registry) RegisterMenu(item MenuItem) error {
	if item.Key == "" || item.Handler == nil || len(item.Labels) == 0 {
		logger.Warn(context.Background(), "tg.wire", "register.menu.skip", slog.String("key", item.Key))
		return errors.New("invalid menu registration")
	}
	r.menuMu.Lock()
	defer r.menuMu.Unlock()
	for _, label := range item.Labels {
		if _, exists := r.menuLabels[label]; exists {
			logger.Warn(context.Background(), "tg.wire", "register.menu.duplicate",
				slog.String("key", item.Key),
				slog.String("label", label),
			)
			return fmt.Errorf("menu label already registered: %s", label)
		}
	}
	idx := len(r.menu)
	r.menu = append(r.menu, item)
	for _, label := range item.Labels {
		r.menuLabels[label] = idx
	}
	return nil
}

// LookupMenu finds the menu item whose label in any language equals text.
func (r *Registry) LookupMenu(text string) (MenuItem, bool) {
	r.menuMu.RLock()
	defer r.menuMu.RUnlock()
	idx, ok := r.menuLabels[strings.TrimSpace(text)]
	if !ok {
		return MenuItem{}, false
	}
	return r.menu[idx], true
}

// MenuSize returns the number of registered menu items.
func (r *Registry) MenuSize() int {
	r.menuMu.RLock()
	defer r.menuMu.RUnlock()
	return len(r.menu)
}

// MenuLabels lists button texts for lang in registration order, falling back to fallbackLang.
func (r *Registry) MenuLabels(lang, fallbackLang string) []string {
	r.menuMu.RLock()
	defer r.menuMu.RUnlock()
	out := make([]string, 0, len(r.menu))
	for _, item := range r.menu {
		label, ok := item.Labels[lang]
		if !ok {
			label, ok = item.Labels[fallbackLang]
		}
		if ok {
			out = append(out, label)
		}
	}
	return out
}

// SetCallbackNotFound replaces the fallback handler for unknown callbacks.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h != nil {
		r.callbackNotFound = h
	}
}

// CallbackNotFound returns the current fallback callback handler.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	return r.callbackNotFound
}

// SetTextFallback sets a global fallback handler for unknown text messages.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.textFallback = h
}

// TextFallback returns the current text fallback handler.
func (r *Registry) TextFallback() tele.HandlerFunc {
	return r.textFallback
}

// commandSetter is the part of the bot that publishes the command menu.
type commandSetter interface {
	SetCommands(opts ...interface{}) error
}

// SetupCommands sets the Telegram bot commands shown in the command menu.
func SetupCommands(bot commandSetter, reg *Registry) {
	cmds := reg.ListCommands(true)
	if err := bot.SetCommands(cmds); err != nil {
		logger.Error(context.Background(), "tg.wire", "register.commands.set_failed",
			slog.String("err", err.Error()),
		)
		return
	}
	logger.Info(context.Background(), "tg.wire", "register.commands",
		slog.Int("count", len(cmds)),
	)
}
