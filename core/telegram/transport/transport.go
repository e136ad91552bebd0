// Package transport adapts telebot contexts to the flow runtime.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/flow"
	"github.com/m3rciful/flowbot/core/logger"
	"github.com/m3rciful/flowbot/core/telegram/format"
	"github.com/m3rciful/flowbot/core/telegram/keyboard"
	"github.com/m3rciful/flowbot/core/telegram/middleware"
)

// api is the part of the bot API used by Transport.
type api interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	EditReplyMarkup(msg tele.Editable, markup *tele.ReplyMarkup) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// Transport implements flow.Transport over a single telebot update.
type Transport struct {
	c   tele.Context
	bot api
}

var _ flow.Transport = (*Transport)(nil)

// New wraps c. The bot behind c is used for sends so message ids are known.
func New(c tele.Context) *Transport {
	return &Transport{c: c, bot: c.Bot()}
}

// UserID returns the sender id or 0.
func (t *Transport) UserID() int64 {
	if u := t.c.Sender(); u != nil {
		return u.ID
	}
	return 0
}

// ChatID returns the chat id or 0.
func (t *Transport) ChatID() int64 {
	if ch := t.c.Chat(); ch != nil {
		return ch.ID
	}
	return 0
}

// MessageID returns the message carrying the pressed button, or 0.
func (t *Transport) MessageID() int {
	if cb := t.c.Callback(); cb != nil && cb.Message != nil {
		return cb.Message.ID
	}
	return 0
}

// Send delivers msg and returns its message id.
func (t *Transport) Send(ctx context.Context, msg flow.Message) (int, error) {
	to := t.c.Recipient()
	if to == nil {
		return 0, flow.ErrNoUser
	}
	opts := &tele.SendOptions{}
	if msg.Markdown {
		opts.ParseMode = format.Legacy.ParseMode()
	}
	if markup := keyboard.InlineMarkup(msg.Keyboard); markup != nil {
		opts.ReplyMarkup = markup
	} else if extra, ok := msg.Extra.(*tele.ReplyMarkup); ok && extra != nil {
		opts.ReplyMarkup = extra
	}

	sent, err := t.bot.Send(to, msg.Text, opts)
	if err != nil {
		return 0, wrapErr("send", err)
	}
	middleware.CountSent(t.c, opts.ReplyMarkup != nil)
	if sent == nil {
		return 0, nil
	}
	logger.Debug(ctx, "tg", "tg.send",
		slog.Int("message_id", sent.ID),
		slog.Bool("kb", opts.ReplyMarkup != nil),
	)
	return sent.ID, nil
}

// EditKeyboard replaces the inline keyboard of messageID; a nil keyboard removes it.
func (t *Transport) EditKeyboard(_ context.Context, messageID int, kb flow.Keyboard) error {
	markup := keyboard.InlineMarkup(kb)
	if _, err := t.bot.EditReplyMarkup(t.stored(messageID), markup); err != nil {
		return wrapErr("edit keyboard", err)
	}
	return nil
}

// Delete removes messageID from the chat.
func (t *Transport) Delete(_ context.Context, messageID int) error {
	if err := t.bot.Delete(t.stored(messageID)); err != nil {
		return wrapErr("delete", err)
	}
	return nil
}

// Respond acknowledges the callback query, if any.
func (t *Transport) Respond(context.Context) error {
	if t.c.Callback() == nil {
		return nil
	}
	if err := t.c.Respond(); err != nil {
		return wrapErr("respond", err)
	}
	return nil
}

func (t *Transport) stored(messageID int) tele.StoredMessage {
	chatID := t.ChatID()
	if chatID == 0 {
		chatID = t.UserID()
	}
	return tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
}

// wrapErr maps Telegram's "message is not modified" to flow.ErrNotModified.
func wrapErr(op string, err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "message is not modified") {
		return fmt.Errorf("telegram %s: %w: %v", op, flow.ErrNotModified, err)
	}
	return fmt.Errorf("telegram %s: %w", op, err)
}
