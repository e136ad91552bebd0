package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/logger"
	"github.com/m3rciful/flowbot/core/telegram/format"
	"github.com/m3rciful/flowbot/core/telegram/sender"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher routes helper sends through d. Nil sends inline.
func SetDispatcher(d *sender.Dispatcher) { dispatcher.Store(d) }

// outgoing is one sendMessage call.
type outgoing struct {
	action string
	text   string
	opts   tele.SendOptions
}

func (o outgoing) deliver(c tele.Context) error {
	opts := o.opts
	return c.Send(o.text, &opts)
}

// post hands o to the dispatcher. A full or closed queue degrades to an inline send.
func post(c tele.Context, o outgoing) error {
	d := dispatcher.Load()
	if d == nil {
		return o.deliver(c)
	}
	ctx := BuildContext(c)
	err := d.Enqueue(ctx, o.action, "sendMessage", func() error { return o.deliver(c) })
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sender.ErrQueueFull), errors.Is(err, sender.ErrQueueClosed):
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", o.action),
			slog.String("err", err.Error()),
		)
		return o.deliver(c)
	default:
		return err
	}
}

// SendText sends plain text. Flow prompts bypass this since they need the message id back.
func SendText(c tele.Context, text string) error {
	return post(c, outgoing{action: "send.text", text: text})
}

// SendMD sends legacy Markdown with an optional keyboard.
func SendMD(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	return post(c, outgoing{
		action: "send.md",
		text:   text,
		opts:   tele.SendOptions{ParseMode: format.Legacy.ParseMode(), ReplyMarkup: markup},
	})
}

// SendWithMarkup sends plain text with a keyboard such as the main menu.
func SendWithMarkup(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	return post(c, outgoing{action: "send.kb", text: text, opts: tele.SendOptions{ReplyMarkup: markup}})
}
