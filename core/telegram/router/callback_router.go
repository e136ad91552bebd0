package router

import (
	"context"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/flow"
	tg "github.com/m3rciful/flowbot/core/telegram"
	"github.com/m3rciful/flowbot/core/telegram/callbacks"
	"github.com/m3rciful/flowbot/core/telegram/middleware"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound  tele.HandlerFunc
	Transport TransportFactory
}

// CallbackRoute returns a handler that routes callbacks through the registry.
// Unique-encoded data goes to registered handlers; raw data belongs to the user's conversation.
func CallbackRoute(conv Conversation, reg *tg.Registry, opts CallbackOptions) tg.Route {
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(CallbackHandler(conv, reg, opts))),
	}
}

// CallbackHandler returns the unwrapped handler used by CallbackRoute.
func CallbackHandler(conv Conversation, reg *tg.Registry, opts CallbackOptions) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		if c.Callback() == nil {
			return nil
		}

		key, payload, unique := callbacks.ParseCallbackData(c.Callback())
		if !unique && conv != nil {
			status, err := withConversation(c, conv, opts.Transport, func(ctx context.Context, conv Conversation, t flow.Transport) error {
				return conv.HandleCallback(ctx, t, payload)
			})
			begin(c, "flow.callback", start).as(status).done(err)
			return err
		}

		name := "callback." + handlerName(key)
		extras := []slog.Attr{slog.String("cb_key", key)}

		var cbHandler tele.HandlerFunc
		if reg != nil {
			cbHandler, _ = reg.GetCallback(key)
		}
		if cbHandler == nil {
			var fallback tele.HandlerFunc
			if reg != nil {
				fallback = reg.CallbackNotFound()
			}
			if fallback == nil {
				fallback = opts.NotFound
			}
			extras = append(extras, slog.String("reason", "not_found"))
			return begin(c, name, start).with(extras...).run(func() error {
				if fallback != nil {
					return fallback(c)
				}
				return c.Respond()
			})
		}

		return begin(c, name, start).with(extras...).run(func() error {
			return cbHandler(c)
		})
	}
}
