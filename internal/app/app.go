// Package app wires the flow runtime, stores and Telegram routes into the flowbot bot.
package app

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/bootstrap"
	corecmd "github.com/m3rciful/flowbot/core/cmd"
	"github.com/m3rciful/flowbot/core/flow"
	"github.com/m3rciful/flowbot/core/i18n"
	"github.com/m3rciful/flowbot/core/logger"
	tg "github.com/m3rciful/flowbot/core/telegram"
	tghelpers "github.com/m3rciful/flowbot/core/telegram/helpers"
	"github.com/m3rciful/flowbot/core/telegram/middleware"
	"github.com/m3rciful/flowbot/core/telegram/router"
	tgsender "github.com/m3rciful/flowbot/core/telegram/sender"
	"github.com/m3rciful/flowbot/core/telegram/transport"
	"github.com/m3rciful/flowbot/core/telegram/ui"
	"github.com/m3rciful/flowbot/core/userstore"
	"github.com/m3rciful/flowbot/internal/notes"
)

//go:embed locales/*.yaml
var appLocales embed.FS

// App holds the bot's long-lived components.
type App struct {
	cfg        *Config
	db         *sqlx.DB
	bundle     *i18n.Bundle
	users      *userstore.Store
	notes      *notes.Store
	runtime    *flow.Runtime
	registry   *tg.Registry
	dispatcher *tgsender.Dispatcher
	fallbacks  ui.Fallbacks

	newTransport func(tele.Context) flow.Transport
}

// Bootstrap runs the shared bootstrap pipeline and assembles the App.
func Bootstrap(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	res, err := bootstrap.Run(ctx, bootstrap.Options{Config: &cfg.Config, Database: cfg.Database})
	if err != nil {
		return nil, err
	}
	bundle, err := LoadLocales(cfg.I18n.DefaultLanguage, cfg.I18n.Dir)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}
	a, err := New(cfg, res.DB, bundle)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}
	return a, nil
}

// LoadLocales merges runtime messages, the bot's own messages and an optional override directory.
func LoadLocales(defaultLang, dir string) (*i18n.Bundle, error) {
	own, err := fs.Sub(appLocales, "locales")
	if err != nil {
		return nil, fmt.Errorf("app: locales: %w", err)
	}
	trees := []fs.FS{own}
	if strings.TrimSpace(dir) != "" {
		trees = append(trees, os.DirFS(dir))
	}
	return i18n.Load(defaultLang, trees...)
}

// New builds the App on an open database.
func New(cfg *Config, db *sqlx.DB, bundle *i18n.Bundle) (*App, error) {
	if cfg == nil || db == nil || bundle == nil {
		return nil, fmt.Errorf("app: config, database and locales are required")
	}
	users := userstore.New(db)
	a := &App{
		cfg:        cfg,
		db:         db,
		bundle:     bundle,
		users:      users,
		notes:      notes.New(db),
		registry:   tg.NewRegistry(),
		dispatcher: tgsender.NewDispatcher(tgsender.Options{}),
		runtime: flow.NewRuntime(flow.RuntimeOptions{
			Localizer:       bundle,
			Language:        users.LanguageFunc(),
			DefaultLanguage: bundle.Default(),
			Location:        cfg.Flow.Location(),
		}),
		newTransport: func(c tele.Context) flow.Transport { return transport.New(c) },
	}
	a.fallbacks = ui.Fallbacks{
		T:           func(c tele.Context, key string) string { return a.t(c, key, nil) },
		DocumentKey: "fallback.document",
		CallbackKey: "fallback.callback",
	}
	if err := a.register(); err != nil {
		return nil, err
	}
	return a, nil
}

// TelegramRunOptions describes routes, middlewares and lifecycle hooks for RunTelegram.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	core := a.cfg.CoreConfig()
	admin := router.CommandRouteOptions{AdminID: core.Telegram.AdminID}

	routes := router.CommandRoutes(a.registry, admin)
	routes = append(routes, router.TextRoutes(a.runtime, a.registry, router.TextOptions{
		UnknownDocument: a.fallbacks.UnknownDocument(),
		Transport:       a.newTransport,
		Admin:           middleware.AdminOptions{AdminID: admin.AdminID},
	})...)
	routes = append(routes, router.CallbackRoute(a.runtime, a.registry, router.CallbackOptions{
		NotFound:  a.fallbacks.UnknownCallback(),
		Transport: a.newTransport,
	}))

	return tg.RunOptions{
		Config:      core,
		Registry:    a.registry,
		Dispatcher:  a.dispatcher,
		Middlewares: tg.DefaultMiddlewares(core, a.onRateLimited),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt tg.Runtime) error {
			attrs := []slog.Attr{slog.String("languages", strings.Join(a.bundle.Languages(), ","))}
			if rt.Bot != nil && rt.Bot.Me != nil {
				attrs = append(attrs, slog.String("bot", rt.Bot.Me.Username))
			}
			logger.Info(ctx, "app", "app.start", attrs...)
			return nil
		},
		OnStop: func(ctx context.Context, _ tg.Runtime) error {
			a.runtime.Close(ctx)
			if err := a.db.Close(); err != nil {
				return fmt.Errorf("app: close database: %w", err)
			}
			return nil
		},
	}, nil
}

func (a *App) onRateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: a.t(c, "fallback.slowDown", nil)})
	}
	return nil
}

// lang resolves the user's language through the store, the bundle default when unset.
func (a *App) lang(ctx context.Context, userID int64) string {
	if userID == 0 {
		return a.bundle.Default()
	}
	return a.bundle.Match(a.users.LanguageFunc()(ctx, userID))
}

func (a *App) langOf(c tele.Context) string {
	var id int64
	if s := c.Sender(); s != nil {
		id = s.ID
	}
	return a.lang(tghelpers.BuildContext(c), id)
}

func (a *App) t(c tele.Context, key string, params map[string]string) string {
	return a.bundle.T(a.langOf(c), key, params)
}
