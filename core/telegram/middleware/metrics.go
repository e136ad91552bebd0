package middleware

import (
	tele "gopkg.in/telebot.v4"
)

const countersKey = "flowbot.sent"

// sent counts the replies of one update for the handler.handled line.
type sent struct {
	messages int
	keyboard bool
}

func countersOf(c tele.Context, create bool) *sent {
	if s, ok := c.Get(countersKey).(*sent); ok {
		return s
	}
	if !create {
		return nil
	}
	s := &sent{}
	c.Set(countersKey, s)
	return s
}

// CountSent records a reply that bypassed tele.Context, such as a flow prompt
// sent through the bot API.
func CountSent(c tele.Context, withKeyboard bool) {
	if c == nil {
		return
	}
	s := countersOf(c, true)
	s.messages++
	s.keyboard = s.keyboard || withKeyboard
}

// GetCounters returns how many messages the update produced and whether any carried a keyboard.
func GetCounters(c tele.Context) (int, bool) {
	if s := countersOf(c, false); s != nil {
		return s.messages, s.keyboard
	}
	return 0, false
}

// MessageMetricsMiddleware wraps the context so replies through it are counted.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		c.Set(countersKey, &sent{})
		return next(metricsContext{Context: c})
	}
}

// metricsContext counts successful sends and edits.
type metricsContext struct{ tele.Context }

func (m metricsContext) track(err error, opts []any) error {
	if err == nil {
		CountSent(m.Context, carriesKeyboard(opts))
	}
	return err
}

func (m metricsContext) Send(what any, opts ...any) error {
	return m.track(m.Context.Send(what, opts...), opts)
}

func (m metricsContext) Reply(what any, opts ...any) error {
	return m.track(m.Context.Reply(what, opts...), opts)
}

func (m metricsContext) Edit(what any, opts ...any) error {
	return m.track(m.Context.Edit(what, opts...), opts)
}

func (m metricsContext) EditOrSend(what any, opts ...any) error {
	return m.track(m.Context.EditOrSend(what, opts...), opts)
}

func (m metricsContext) EditOrReply(what any, opts ...any) error {
	return m.track(m.Context.EditOrReply(what, opts...), opts)
}

func carriesKeyboard(opts []any) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}
