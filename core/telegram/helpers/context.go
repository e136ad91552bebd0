package helpers

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/logger"
)

// storeKey holds the per-update context.Context inside tele.Context.
const storeKey = "flowbot.ctx"

// IDs are the identifiers every log line of an update carries.
type IDs struct {
	Update int
	Chat   int64
	User   int64
}

// UpdateIDs reads the update, chat and user ids of c. Missing parts stay zero.
func UpdateIDs(c tele.Context) IDs {
	ids := IDs{Update: c.Update().ID}
	if chat := c.Chat(); chat != nil {
		ids.Chat = chat.ID
	}
	if user := c.Sender(); user != nil {
		ids.User = user.ID
	}
	return ids
}

// RID is the correlation id of the update.
func (ids IDs) RID() string { return logger.BuildRID(ids.Update, ids.Chat, ids.User) }

// StoreContext keeps ctx on c for handlers further down the chain.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(storeKey, ctx)
	}
}

// ContextFrom returns the context stored on c, if any.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(storeKey).(context.Context)
	return ctx, ok
}

// BuildContext returns the update context of c, creating and storing it on first use.
// It carries the correlation ids and the "tg" component logger.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := ContextFrom(c); ok {
		return ctx
	}
	ids := UpdateIDs(c)
	ctx := logger.WithRID(context.Background(), ids.RID())
	ctx = logger.WithUpdateMeta(ctx, ids.Update, ids.User, ids.Chat)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	StoreContext(c, ctx)
	return ctx
}

// WithHandler names the handler on the stored update context and returns it.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := logger.WithHandler(BuildContext(c), handler)
	StoreContext(c, ctx)
	return ctx
}
