package app

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/flow"
	"github.com/m3rciful/flowbot/core/logger"
	tg "github.com/m3rciful/flowbot/core/telegram"
	"github.com/m3rciful/flowbot/core/telegram/callbacks"
	"github.com/m3rciful/flowbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/flowbot/core/telegram/helpers"
	"github.com/m3rciful/flowbot/core/telegram/keyboard"
	"github.com/m3rciful/flowbot/core/telegram/middleware"
)

const (
	callbackSessionCancel = "sess_cancel"

	maxSessionButtons = 20
	notesListLimit    = 10
)

func (a *App) register() error {
	reg := a.registry
	reg.RegisterCommand("/start", commands.Command{Description: "Start the bot", Handler: a.handleStart})
	reg.RegisterCommand("/cancel", commands.Command{Description: "Cancel the current action", Handler: a.handleCancel})
	reg.RegisterCommand("/help", commands.Command{Description: "Show help", Handler: a.handleHelp})
	reg.RegisterCommand("/sessions", commands.Command{
		Description: "Active flows",
		Handler:     a.handleSessions,
		AdminOnly:   true,
		Hidden:      true,
	})

	// callbacks bypass the command admin guard, so the check is repeated here
	adminOnly := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  a.cfg.Telegram.AdminID,
		OnReject: a.fallbacks.UnknownCallback(),
	})
	if err := reg.RegisterCallback(callbackSessionCancel, adminOnly(a.handleSessionCancel)); err != nil {
		return err
	}
	reg.SetCallbackNotFound(a.fallbacks.UnknownCallback())

	items := []struct {
		key     string
		handler tele.HandlerFunc
	}{
		{"note", a.startFlow(a.noteFlow)},
		{"notes", a.handleNotes},
		{"language", a.startFlow(a.languageFlow("language.prompt"))},
		{"help", a.handleHelp},
	}
	for _, it := range items {
		labels := make(map[string]string, len(a.bundle.Languages()))
		for _, code := range a.bundle.Languages() {
			labels[code] = a.bundle.T(code, "menu."+it.key, nil)
		}
		if err := reg.RegisterMenu(tg.MenuItem{Key: it.key, Labels: labels, Handler: it.handler}); err != nil {
			return err
		}
	}
	return nil
}

// handleStart greets known users with the menu and walks new users through the language choice.
func (a *App) handleStart(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if s := c.Sender(); s != nil {
		lang, err := a.users.Language(ctx, s.ID)
		if err != nil {
			logger.Warn(ctx, "app", "start.language", slog.String("err", err.Error()))
		}
		if lang != "" {
			lang = a.bundle.Match(lang)
			return tghelpers.SendWithMarkup(c, a.bundle.T(lang, "welcome.back", nil), a.mainMenu(lang))
		}
	}
	return a.startFlow(a.languageFlow("welcome.greeting"))(c)
}

func (a *App) handleCancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	lang := a.langOf(c)
	key := "cancel.none"
	if a.runtime.Cancel(ctx, a.newTransport(c)) {
		key = "bot.actionCancelled"
	}
	return tghelpers.SendWithMarkup(c, a.bundle.T(lang, key, nil), a.mainMenu(lang))
}

func (a *App) handleHelp(c tele.Context) error {
	lang := a.langOf(c)
	return tghelpers.SendWithMarkup(c, a.bundle.T(lang, "help.text", nil), a.mainMenu(lang))
}

// handleNotes lists the sender's upcoming notes.
func (a *App) handleNotes(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	lang := a.langOf(c)
	if c.Sender() == nil {
		return nil
	}
	list, err := a.notes.List(ctx, c.Sender().ID, notesListLimit)
	if err != nil {
		logger.Error(ctx, "app", "notes.list", slog.String("err", err.Error()))
		return tghelpers.SendText(c, a.bundle.T(lang, "runtime.operationError", nil))
	}
	if len(list) == 0 {
		return tghelpers.SendWithMarkup(c, a.bundle.T(lang, "note.empty", nil), a.mainMenu(lang))
	}

	lines := []string{a.bundle.T(lang, "note.listHeader", nil)}
	for _, n := range list {
		category := a.bundle.T(lang, "note.categories."+n.Category, nil)
		if category == "note.categories."+n.Category {
			category = n.Category
		}
		lines = append(lines, a.bundle.T(lang, "note.listLine", map[string]string{
			"date":     n.DueDate.Format(time.DateOnly),
			"title":    escapeMD(n.Title),
			"category": escapeMD(category),
		}))
	}
	return tghelpers.SendMD(c, strings.Join(lines, "\n"), a.mainMenu(lang))
}

// handleSessions shows running flows with a cancel button per user.
func (a *App) handleSessions(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	lang := a.langOf(c)

	sessions := a.runtime.Snapshot()
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartedAt.Before(sessions[j].StartedAt) })

	users, err := a.users.Count(ctx)
	if err != nil {
		logger.Warn(ctx, "app", "sessions.users", slog.String("err", err.Error()))
	}
	stats := a.dispatcher.Stats()
	lines := []string{a.bundle.T(lang, "admin.sessions", map[string]string{
		"count":   strconv.Itoa(len(sessions)),
		"users":   strconv.Itoa(users),
		"queued":  strconv.Itoa(stats.Queued),
		"retried": strconv.FormatUint(stats.Retried, 10),
		"errors":  strconv.FormatUint(stats.Failed, 10),
	})}
	if len(sessions) == 0 {
		lines = append(lines, a.bundle.T(lang, "admin.noSessions", nil))
		return tghelpers.SendText(c, strings.Join(lines, "\n\n"))
	}

	now := time.Now()
	var kb flow.Keyboard
	for i, s := range sessions {
		user := strconv.FormatInt(int64(s.User), 10)
		pending := string(s.Pending)
		if pending == "" {
			pending = "-"
		}
		lines = append(lines, a.bundle.T(lang, "admin.sessionLine", map[string]string{
			"user":    user,
			"pending": pending,
			"idle":    now.Sub(s.UpdatedAt).Round(time.Second).String(),
		}))
		if i < maxSessionButtons {
			kb = append(kb, []flow.Button{{
				Text: a.bundle.T(lang, "admin.cancelButton", map[string]string{"user": user}),
				Data: callbacks.Data(callbackSessionCancel, user),
			}})
		}
	}
	return tghelpers.SendWithMarkup(c, strings.Join(lines, "\n"), keyboard.InlineMarkup(kb))
}

// handleSessionCancel stops another user's flow from the /sessions list.
func (a *App) handleSessionCancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return a.fallbacks.UnknownCallback()(c)
	}
	cancelled := a.runtime.CancelUser(ctx, flow.UserKey(id))
	logger.Info(ctx, "app", "admin.session_cancel",
		slog.Int64("target_id", id),
		slog.Bool("cancelled", cancelled),
	)
	key := "admin.notFound"
	if cancelled {
		key = "admin.cancelled"
	}
	return c.Respond(&tele.CallbackResponse{Text: a.t(c, key, nil)})
}
