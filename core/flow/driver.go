package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/flowbot/core/logger"
)

var errNilStep = errors.New("flow: step has no function")

// drive resumes the flow with input and steps it until it blocks, ends, or fails.
func (r *Runtime) drive(ctx context.Context, key UserKey, sess *Session, t Transport, input any) {
	ctx = logger.WithSession(ctx, sess.ID)
	sess.Transport = t
	sess.UpdatedAt = r.now()
	co := sess.co

	msg := co.next(input, nil)
	injected := false
	for {
		if msg.done {
			if msg.err != nil {
				r.fail(ctx, key, sess, t, msg.err, injected)
				return
			}
			r.store.deleteIf(key, sess)
			logger.Info(ctx, "flow", "flow.done",
				slog.Int64("dur_ms", r.now().Sub(sess.StartedAt).Milliseconds()),
			)
			return
		}

		switch s := msg.step.(type) {
		case AwaitStep:
			v, err := runAwait(ctx, s)
			injected = err != nil
			msg = co.next(v, err)

		case CallStep:
			v, err := runCall(sess.State, t, s)
			injected = err != nil
			msg = co.next(v, err)

		case ValueStep:
			injected = false
			msg = co.next(s.V, nil)

		case Effect:
			injected = false
			switch r.process(ctx, t, sess, s) {
			case signalWait:
				logger.Debug(ctx, "flow", "flow.wait", slog.String("pending", pendingKind(sess.Pending)))
				return
			case signalCancel:
				r.teardown(ctx, key, sess, t)
				logger.Info(ctx, "flow", "flow.cancelled", slog.String("by", "user"))
				return
			default:
				msg = co.next(nil, nil)
			}

		default:
			// the Step union is closed, so this only triggers for a nil step
			injected = false
			msg = co.next(nil, nil)
		}
	}
}

// fail tears down a session whose flow returned an error or panicked.
func (r *Runtime) fail(ctx context.Context, key UserKey, sess *Session, t Transport, err error, injected bool) {
	r.disarm(ctx, t, sess)
	r.store.deleteIf(key, sess)

	attrs := []slog.Attr{
		slog.String("err", err.Error()),
		slog.Bool("injected", injected),
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		attrs = append(attrs, slog.String("stack", string(pe.Stack)))
	}
	logger.Error(ctx, "flow", "flow.error", attrs...)

	if injected {
		r.notify(ctx, t, "runtime.operationError")
		return
	}
	r.notify(ctx, t, "runtime.flowError")
}

// teardown cleans the pending UI, unwinds the flow and removes the session.
func (r *Runtime) teardown(ctx context.Context, key UserKey, sess *Session, t Transport) {
	if t == nil {
		t = sess.Transport
	}
	r.disarm(ctx, t, sess)
	sess.co.close()
	r.store.deleteIf(key, sess)
}

func runAwait(ctx context.Context, s AwaitStep) (v any, err error) {
	if s.Fn == nil {
		return nil, errNilStep
	}
	defer recoverStep(&err)
	return s.Fn(ctx)
}

func runCall(state State, t Transport, s CallStep) (v any, err error) {
	if s.Fn == nil {
		return nil, errNilStep
	}
	defer recoverStep(&err)
	return s.Fn(state, t)
}

// recoverStep turns a panic in an Await or Call function into an injected error.
func recoverStep(err *error) {
	if rec := recover(); rec != nil {
		*err = fmt.Errorf("flow: step failed: %w", &PanicError{Value: rec, Stack: debug.Stack()})
	}
}

func pendingKind(p Pending) string {
	if p == nil {
		return ""
	}
	return string(p.Kind())
}
