package flow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m3rciful/flowbot/core/logger"
)

// CancelPayload is the callback data of the cancel button on string prompts.
const CancelPayload = "cancel"

// signal tells the driver what to do after an effect.
type signal int

const (
	signalContinue signal = iota
	signalWait
	signalCancel
)

func (s signal) String() string {
	switch s {
	case signalWait:
		return "wait"
	case signalCancel:
		return "cancel"
	default:
		return "continue"
	}
}

// process performs an effect and arms the session's pending expectation.
// Send failures are logged and never surface to the flow.
func (r *Runtime) process(ctx context.Context, t Transport, sess *Session, eff Effect) signal {
	switch e := eff.(type) {
	case ResponseEffect:
		r.send(ctx, t, Message{Text: e.Text, Extra: e.Extra}, eff.Type())
		return signalContinue

	case MarkdownEffect:
		r.send(ctx, t, Message{Text: e.Text, Markdown: true, Extra: e.Extra}, eff.Type())
		return signalContinue

	case StringRequest:
		p := &PendingString{
			Validator:      e.Validator,
			Cancellable:    e.Cancellable,
			DeletePrevious: e.DeletePrevious,
		}
		sess.Pending = p
		msg := Message{Text: r.orDefault(ctx, t, e.Prompt, "runtime.enterText")}
		if e.Cancellable {
			msg.Keyboard = Keyboard{{{Text: r.text(ctx, t, "buttons.cancel"), Data: CancelPayload}}}
		}
		if id, ok := r.send(ctx, t, msg, eff.Type()); ok && (e.Cancellable || e.DeletePrevious) {
			p.MessageID = id
		}
		return signalWait

	case ChoiceRequest:
		p := &PendingChoice{
			Options:        e.Options,
			AllowCustom:    e.AllowCustom,
			DeletePrevious: e.DeletePrevious,
		}
		sess.Pending = p
		kb := make(Keyboard, 0, len(e.Options))
		for _, opt := range e.Options {
			kb = append(kb, []Button{{Text: opt.Label, Data: opt.Key}})
		}
		msg := Message{Text: r.orDefault(ctx, t, e.Prompt, "runtime.selectOption"), Keyboard: kb}
		if id, ok := r.send(ctx, t, msg, eff.Type()); ok {
			p.MessageID = id
		}
		return signalWait

	case DateRequest:
		now := r.now().In(r.location)
		prefix := calendarPrefix(e.Prefix)
		if prefix == "" {
			prefix = sess.ID
		}
		p := &PendingDate{
			Prefix:        prefix,
			CalendarYear:  now.Year(),
			CalendarMonth: int(now.Month()) - 1,
		}
		sess.Pending = p
		prompt := r.orDefault(ctx, t, e.Prompt, "runtime.selectDate")
		kb := RenderCalendar(p.CalendarYear, p.CalendarMonth, prefix, r.calendarLabels(r.language(ctx, t)))
		id, err := t.Send(ctx, Message{Text: prompt, Keyboard: kb})
		if err == nil {
			p.MessageID = id
			return signalWait
		}
		logger.Warn(ctx, "flow", "calendar.send_failed",
			slog.String("err", err.Error()),
		)
		r.send(ctx, t, Message{Text: prompt}, eff.Type())
		return signalWait

	case CancelEffect:
		r.send(ctx, t, Message{Text: r.orDefault(ctx, t, e.Text, "bot.actionCancelled")}, eff.Type())
		return signalCancel
	}

	logger.Warn(ctx, "flow", "effect.unknown", slog.String("effect", string(eff.Type())))
	return signalContinue
}

// send delivers msg and logs a failure instead of returning it.
func (r *Runtime) send(ctx context.Context, t Transport, msg Message, kind EffectType) (int, bool) {
	id, err := t.Send(ctx, msg)
	if err != nil {
		logger.Warn(ctx, "flow", "effect.send_failed",
			slog.String("effect", string(kind)),
			slog.String("err", err.Error()),
		)
		return 0, false
	}
	return id, true
}

// notify sends a localized notice.
func (r *Runtime) notify(ctx context.Context, t Transport, key string) {
	if t == nil {
		return
	}
	if _, err := t.Send(ctx, Message{Text: r.text(ctx, t, key)}); err != nil {
		logger.Warn(ctx, "flow", "notice.send_failed",
			slog.String("key", key),
			slog.String("err", err.Error()),
		)
	}
}

// ack answers the triggering callback so its button does not spin.
func (r *Runtime) ack(ctx context.Context, t Transport) {
	if t == nil {
		return
	}
	if err := t.Respond(ctx); err != nil {
		logger.Debug(ctx, "flow", "callback.ack_failed", slog.String("err", err.Error()))
	}
}

func (r *Runtime) clearKeyboard(ctx context.Context, t Transport, messageID int) {
	if t == nil || messageID == 0 {
		return
	}
	if err := t.EditKeyboard(ctx, messageID, nil); err != nil && !errors.Is(err, ErrNotModified) {
		logger.Warn(ctx, "flow", "keyboard.clear_failed",
			slog.Int("message_id", messageID),
			slog.String("err", err.Error()),
		)
	}
}

// disarm drops the pending expectation and removes its prompt controls,
// deleting the prompt message instead when it asked for that.
func (r *Runtime) disarm(ctx context.Context, t Transport, sess *Session) {
	p := sess.Pending
	sess.Pending = nil
	if p == nil || t == nil {
		return
	}
	id, deletePrevious := p.promptMessage()
	if id == 0 {
		return
	}
	if !deletePrevious {
		r.clearKeyboard(ctx, t, id)
		return
	}
	if err := t.Delete(ctx, id); err != nil {
		logger.Warn(ctx, "flow", "prompt.delete_failed",
			slog.Int("message_id", id),
			slog.String("err", err.Error()),
		)
	}
}
