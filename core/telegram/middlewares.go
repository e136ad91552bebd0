package telegram

import (
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/flowbot/core/config"
	"github.com/m3rciful/flowbot/core/telegram/middleware"
)

// DefaultMiddlewares returns the global chain, outermost first:
// recover, rate_limit (when configured), logger, metrics.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited tele.HandlerFunc) []Middleware {
	chain := []Middleware{{Name: "recover", Use: middleware.RecoverMiddleware}}
	if cfg != nil {
		if every := cfg.RateLimit.Interval(); every > 0 {
			chain = append(chain, Middleware{
				Name: "rate_limit",
				Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
					Interval:  every,
					Exclude:   cfg.RateLimit.Excluded(),
					OnLimited: onLimited,
				}),
			})
		}
	}
	return append(chain,
		Middleware{Name: "logger", Use: middleware.LoggerMiddleware},
		Middleware{Name: "metrics", Use: middleware.MessageMetricsMiddleware},
	)
}
