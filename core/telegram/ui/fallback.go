package ui

import (
	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/m3rciful/flowbot/core/telegram/helpers"
)

// FallbackProvider exposes handlers used when incoming updates
// cannot be mapped to commands, callbacks, or expected documents.
type FallbackProvider interface {
	UnknownText() tele.HandlerFunc
	UnknownDocument() tele.HandlerFunc
	UnknownCallback() tele.HandlerFunc
}

// Translate resolves a message key for the sender of an update.
type Translate func(c tele.Context, key string) string

// Fallbacks answers unmapped updates with localized notices.
// An empty key falls back to a silent acknowledgement.
type Fallbacks struct {
	T           Translate
	TextKey     string
	DocumentKey string
	CallbackKey string
}

var _ FallbackProvider = Fallbacks{}

// UnknownText replies to text nobody claimed.
func (f Fallbacks) UnknownText() tele.HandlerFunc {
	return f.reply(f.TextKey)
}

// UnknownDocument replies to uploaded files.
func (f Fallbacks) UnknownDocument() tele.HandlerFunc {
	return f.reply(f.DocumentKey)
}

// UnknownCallback answers stale or unregistered buttons with a toast.
func (f Fallbacks) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		if f.CallbackKey == "" || f.T == nil {
			return c.Respond()
		}
		return c.Respond(&tele.CallbackResponse{Text: f.T(c, f.CallbackKey)})
	}
}

func (f Fallbacks) reply(key string) tele.HandlerFunc {
	return func(c tele.Context) error {
		if key == "" || f.T == nil {
			return nil
		}
		return tghelpers.SendText(c, f.T(c, key))
	}
}
