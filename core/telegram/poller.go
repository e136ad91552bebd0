package telegram

import (
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/flowbot/core/config"
)

const defaultPollTimeout = 10 * time.Second

// allowedUpdates limits delivery to what the router handles.
var allowedUpdates = []string{"message", "callback_query"}

// NewPoller picks long polling or a webhook listener from the Telegram settings.
func NewPoller(tg coreconfig.TelegramConfig, wh coreconfig.WebhookConfig) tele.Poller {
	if strings.EqualFold(strings.TrimSpace(tg.RunMode), coreconfig.RunModeWebhook) {
		return &tele.Webhook{
			Listen:         net.JoinHostPort(wh.Listen, strconv.Itoa(wh.Port)),
			Endpoint:       &tele.WebhookEndpoint{PublicURL: wh.URL},
			AllowedUpdates: allowedUpdates,
		}
	}
	return &tele.LongPoller{Timeout: pollTimeout(tg), AllowedUpdates: allowedUpdates}
}

func pollTimeout(tg coreconfig.TelegramConfig) time.Duration {
	if tg.LongPollTimeoutSeconds <= 0 {
		return defaultPollTimeout
	}
	return time.Duration(tg.LongPollTimeoutSeconds) * time.Second
}

// pollerAttrs describes p for the startup log.
func pollerAttrs(p tele.Poller) []slog.Attr {
	switch p := p.(type) {
	case *tele.Webhook:
		return []slog.Attr{
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
		}
	case *tele.LongPoller:
		return []slog.Attr{
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Duration("poll_timeout", p.Timeout),
		}
	}
	return []slog.Attr{slog.String("mode", "custom")}
}
