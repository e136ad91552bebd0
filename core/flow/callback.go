package flow

import (
	"context"
	"log/slog"

	"github.com/m3rciful/flowbot/core/logger"
)

// routeCallback classifies a button press against the pending expectation.
// Every path acknowledges the callback exactly once.
func (r *Runtime) routeCallback(ctx context.Context, t Transport, sess *Session, data string) resolution {
	switch p := sess.Pending.(type) {
	case *PendingDate:
		if res, handled := r.handleCalendar(ctx, t, sess, p, data); handled {
			return res
		}

	case *PendingChoice:
		if !p.Options.Has(data) {
			r.ack(ctx, t)
			r.notify(ctx, t, "runtime.unexpectedChoice")
			return wait()
		}
		r.disarm(ctx, t, sess)
		r.ack(ctx, t)
		return proceed(data)

	case *PendingString:
		if p.Cancellable && data == CancelPayload {
			r.disarm(ctx, t, sess)
			r.ack(ctx, t)
			return proceed(nil)
		}
	}

	if data != NoopPayload {
		logger.Debug(ctx, "flow", "callback.ignored",
			slog.String("payload", logger.SanitizeLimit(data, 64)),
		)
	}
	r.ack(ctx, t)
	return wait()
}
