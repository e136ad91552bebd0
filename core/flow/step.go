package flow

import "context"

// Step is anything a flow may yield: an Effect, an Await, a Call, or a Value.
type Step interface {
	isStep()
}

// AwaitStep runs Fn and resumes the flow with its result or error.
type AwaitStep struct {
	Fn func(ctx context.Context) (any, error)
}

// CallStep invokes Fn with the session state and the current transport.
type CallStep struct {
	Fn func(state State, t Transport) (any, error)
}

// ValueStep hands V straight back to the flow.
type ValueStep struct {
	V any
}

func (AwaitStep) isStep() {}
func (CallStep) isStep()  {}
func (ValueStep) isStep() {}

// Await wraps a blocking operation.
func Await(fn func(ctx context.Context) (any, error)) AwaitStep {
	return AwaitStep{Fn: fn}
}

// Call wraps a function that needs the session state or the transport.
func Call(fn func(state State, t Transport) (any, error)) CallStep {
	return CallStep{Fn: fn}
}

// Value yields plain data.
func Value(v any) ValueStep {
	return ValueStep{V: v}
}

// PendingKind tags the input a session is waiting for.
type PendingKind string

const (
	PendingKindString PendingKind = "string"
	PendingKindChoice PendingKind = "choice"
	PendingKindDate   PendingKind = "date"
)

// Pending describes the next input a session expects. The set of implementations is closed.
type Pending interface {
	Kind() PendingKind
	promptMessage() (id int, deletePrevious bool)
}

// PendingString waits for free text.
type PendingString struct {
	Validator      func(string) bool
	Cancellable    bool
	DeletePrevious bool
	MessageID      int
}

// PendingChoice waits for one of Options.
type PendingChoice struct {
	Options        Options
	AllowCustom    bool
	DeletePrevious bool
	MessageID      int
}

// PendingDate waits for a calendar selection.
type PendingDate struct {
	Prefix        string
	CalendarYear  int
	CalendarMonth int
	MessageID     int
}

func (*PendingString) Kind() PendingKind { return PendingKindString }
func (*PendingChoice) Kind() PendingKind { return PendingKindChoice }
func (*PendingDate) Kind() PendingKind   { return PendingKindDate }

func (p *PendingString) promptMessage() (int, bool) { return p.MessageID, p.DeletePrevious }
func (p *PendingChoice) promptMessage() (int, bool) { return p.MessageID, p.DeletePrevious }
func (p *PendingDate) promptMessage() (int, bool)   { return p.MessageID, false }
