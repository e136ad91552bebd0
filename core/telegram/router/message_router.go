package router

import (
	"context"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/flow"
	tg "github.com/m3rciful/flowbot/core/telegram"
	"github.com/m3rciful/flowbot/core/telegram/middleware"
)

// TextOptions controls fallback behaviour for text/document updates.
type TextOptions struct {
	// UnknownText answers unclaimed text only when no conversation is wired;
	// otherwise the conversation replies to text it does not expect.
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
	Transport       TransportFactory
	// Admin guards admin-only commands reached through aliases or @botname suffixes.
	Admin middleware.AdminOptions
}

// TextRoutes builds handlers for text and document routing.
// Text goes to a command, then a main-menu button, then the user's conversation.
func TextRoutes(conv Conversation, reg *tg.Registry, opts TextOptions) []tg.Route {
	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(TextHandler(conv, reg, opts))),
		},
		{
			Endpoint: tele.OnDocument,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(DocumentHandler(opts))),
		},
	}
}

// TextHandler returns the unwrapped text handler used by TextRoutes.
// With a conversation wired, registry and option text fallbacks are never reached.
func TextHandler(conv Conversation, reg *tg.Registry, opts TextOptions) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				name := handlerName(key)
				h := cmd.Handler
				if cmd.AdminOnly {
					h = middleware.AdminOnlyMiddleware(opts.Admin)(h)
				}
				return begin(c, name, start).run(func() error {
					return h(c)
				})
			}
			if item, ok := reg.LookupMenu(text); ok {
				name := "menu." + handlerName(item.Key)
				return begin(c, name, start).run(func() error {
					return item.Handler(c)
				})
			}
		}

		if conv != nil {
			status, err := withConversation(c, conv, opts.Transport, func(ctx context.Context, conv Conversation, t flow.Transport) error {
				return conv.HandleText(ctx, t, text)
			})
			begin(c, "flow.text", start).as(status).done(err)
			return err
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return begin(c, "fallback", start).run(func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return begin(c, "unknown_text", start).run(func() error {
				return opts.UnknownText(c)
			})
		}

		begin(c, "unknown_text", start).as("skip").done(nil)
		return nil
	}
}

// DocumentHandler answers documents, which no flow step accepts.
func DocumentHandler(opts TextOptions) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		if opts.UnknownDocument != nil {
			return begin(c, "unexpected_document", start).run(func() error {
				return opts.UnknownDocument(c)
			})
		}
		begin(c, "unexpected_document", start).as("skip").done(nil)
		return nil
	}
}
