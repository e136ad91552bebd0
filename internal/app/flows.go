package app

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/flow"
	"github.com/m3rciful/flowbot/core/telegram/format"
	tghelpers "github.com/m3rciful/flowbot/core/telegram/helpers"
	"github.com/m3rciful/flowbot/core/telegram/keyboard"
	"github.com/m3rciful/flowbot/internal/notes"
)

const (
	stateLang = "lang"

	titleMinLen = 3
	titleMaxLen = 64
)

var noteCategories = []string{"work", "home", "errands"}

// startFlow returns a handler that starts fn for the sender, replacing any running flow.
func (a *App) startFlow(fn flow.Flow) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		err := a.runtime.Start(ctx, a.newTransport(c), fn, flow.State{stateLang: a.langOf(c)})
		if errors.Is(err, flow.ErrNoUser) {
			return nil
		}
		return err
	}
}

func (a *App) stateLang(state flow.State) string {
	if lang, ok := state[stateLang].(string); ok && lang != "" {
		return lang
	}
	return a.bundle.Default()
}

// userOf asks the runtime which user drives the flow.
func userOf(y *flow.Yielder) (int64, error) {
	v, err := y.Yield(flow.Call(func(_ flow.State, t flow.Transport) (any, error) {
		key, ok := flow.ResolveUser(t)
		if !ok {
			return nil, flow.ErrNoUser
		}
		return int64(key), nil
	}))
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// languageFlow lets the user pick a language and stores it.
func (a *App) languageFlow(promptKey string) flow.Flow {
	return func(y *flow.Yielder, state flow.State) error {
		lang := a.stateLang(state)
		options := make(flow.Options, 0, len(a.bundle.Languages()))
		for _, code := range a.bundle.Languages() {
			options = append(options, flow.Opt(code, a.bundle.T(code, "language.name", nil)))
		}

		choice, ok, err := y.Ask(flow.RequestChoice(state, options, a.bundle.T(lang, promptKey, nil)))
		if err != nil || !ok {
			return err
		}
		user, err := userOf(y)
		if err != nil {
			return err
		}

		err = y.Do(flow.Await(func(ctx context.Context) (any, error) {
			return nil, a.users.SetLanguage(ctx, user, choice)
		}))
		if errors.Is(err, flow.ErrFlowInterrupted) {
			return err
		}
		if err != nil {
			return y.Do(flow.Response(state, a.bundle.T(lang, "language.failed", nil), a.mainMenu(lang)))
		}

		state[stateLang] = choice
		return y.Do(flow.Response(state, a.bundle.T(choice, "language.saved", nil), a.mainMenu(choice)))
	}
}

func validTitle(s string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	return n >= titleMinLen && n <= titleMaxLen
}

// noteFlow collects a title, a due date and a category, then saves the note.
func (a *App) noteFlow(y *flow.Yielder, state flow.State) error {
	lang := a.stateLang(state)
	tr := func(key string) string { return a.bundle.T(lang, key, nil) }

	title, ok, err := y.Ask(flow.RequestString(state, tr("note.askTitle"),
		flow.WithValidator(validTitle),
		flow.Cancellable(),
	))
	if err != nil {
		return err
	}
	if !ok {
		return y.Do(flow.Cancelled(state, tr("note.dismissed")))
	}
	title = strings.TrimSpace(title)

	due, err := y.AskDate(flow.RequestDate(state, tr("note.askDate")))
	if err != nil {
		return err
	}

	categories := make(flow.Options, 0, len(noteCategories))
	for _, key := range noteCategories {
		categories = append(categories, flow.Opt(key, tr("note.categories."+key)))
	}
	category, _, err := y.Ask(flow.RequestChoice(state, categories, tr("note.askCategory"),
		flow.AllowCustom(),
		flow.DeletePrevious(),
	))
	if err != nil {
		return err
	}
	category = strings.TrimSpace(category)

	user, err := userOf(y)
	if err != nil {
		return err
	}
	v, err := y.Yield(flow.Await(func(ctx context.Context) (any, error) {
		return a.notes.Add(ctx, notes.Note{
			TelegramID: user,
			Title:      title,
			Category:   category,
			DueDate:    due.Time(nil),
		})
	}))
	if err != nil {
		return err
	}
	saved := v.(notes.Note)

	label, ok := categories.Label(saved.Category)
	if !ok {
		label = saved.Category
	}
	text := a.bundle.T(lang, "note.saved", map[string]string{
		"title":    escapeMD(saved.Title),
		"date":     due.String(),
		"category": escapeMD(label),
	})
	return y.Do(flow.ResponseMarkdown(state, text, a.mainMenu(lang)))
}

func escapeMD(s string) string {
	return format.Escape(format.Legacy, s)
}

// mainMenu renders the localized reply keyboard, two buttons per row.
func (a *App) mainMenu(lang string) *tele.ReplyMarkup {
	return keyboard.ReplyButtons(keyboard.Chunk(a.registry.MenuLabels(lang, a.bundle.Default()), 2)...)
}
