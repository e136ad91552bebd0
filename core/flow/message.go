package flow

import "context"

type action int

const (
	actionWait action = iota
	actionProceed
	actionCancel
)

func (a action) String() string {
	switch a {
	case actionProceed:
		return "proceed"
	case actionCancel:
		return "cancel"
	default:
		return "wait"
	}
}

// resolution is what a router decided for one inbound event.
type resolution struct {
	action action
	input  any
}

func wait() resolution { return resolution{action: actionWait} }

func proceed(input any) resolution { return resolution{action: actionProceed, input: input} }

// routeText classifies free text against the pending expectation.
// A rejected message leaves the session untouched.
func (r *Runtime) routeText(ctx context.Context, t Transport, sess *Session, text string) resolution {
	switch p := sess.Pending.(type) {
	case nil:
		r.notify(ctx, t, "runtime.responseNotExpected")
		return wait()

	case *PendingString:
		if p.Validator != nil && !p.Validator(text) {
			r.notify(ctx, t, "runtime.invalidInput")
			return wait()
		}
		r.disarm(ctx, t, sess)
		return proceed(text)

	case *PendingChoice:
		if !p.AllowCustom {
			r.notify(ctx, t, "runtime.selectWithButton")
			return wait()
		}
		// typed answers go through verbatim, even when they differ from every key
		r.disarm(ctx, t, sess)
		return proceed(text)

	case *PendingDate:
		r.notify(ctx, t, "runtime.selectDateInCalendar")
		return wait()
	}

	r.notify(ctx, t, "runtime.unexpectedInput")
	return wait()
}
