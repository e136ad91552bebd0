package flow

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrFlowInterrupted is delivered to a suspended flow when a new flow replaces it.
var ErrFlowInterrupted = errors.New("flow: interrupted by a new flow")

// Flow is a linear conversation. It suspends at every y.Yield and returns when done.
// A non-nil return tears the session down with a generic error notice.
type Flow func(y *Yielder, state State) error

// PanicError carries a panic raised inside a flow.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("flow: panic: %v", e.Value)
}

// Yielder is the flow side of the coroutine.
type Yielder struct {
	co *coroutine
}

// Yield suspends the flow until the runtime resumes it with the step's result.
// A non-nil error is an injected failure (failed Await/Call, or ErrFlowInterrupted).
func (y *Yielder) Yield(step Step) (any, error) {
	if step == nil {
		step = ValueStep{}
	}
	return y.co.suspend(step)
}

// Do yields step and discards its result.
func (y *Yielder) Do(step Step) error {
	_, err := y.Yield(step)
	return err
}

// Ask yields a string or choice request and returns the answer.
// ok is false when the user dismissed a cancellable prompt.
func (y *Yielder) Ask(step Step) (answer string, ok bool, err error) {
	v, err := y.Yield(step)
	if err != nil {
		return "", false, err
	}
	switch s := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return s, true, nil
	default:
		return fmt.Sprint(s), true, nil
	}
}

// AskDate yields a date request and returns the selected day.
func (y *Yielder) AskDate(step Step) (CalendarDate, error) {
	v, err := y.Yield(step)
	if err != nil {
		return CalendarDate{}, err
	}
	d, ok := v.(CalendarDate)
	if !ok {
		return CalendarDate{}, fmt.Errorf("flow: expected calendar date, got %T", v)
	}
	return d, nil
}

type resumeMsg struct {
	value any
	err   error
}

type yieldMsg struct {
	step Step
	done bool
	err  error
}

// closeSignal unwinds a flow goroutine whose session is gone.
type closeSignal struct{}

// coroutine runs a Flow on its own goroutine and hands control back and forth
// over unbuffered channels, so the flow and the driver never run at the same time.
// All methods are called by the driver under the owning user's lock.
type coroutine struct {
	fn    Flow
	state State

	resume  chan resumeMsg
	yield   chan yieldMsg
	closing chan struct{}
	exited  chan struct{}

	started  bool
	finished bool
	closed   bool
}

func newCoroutine(fn Flow, state State) *coroutine {
	return &coroutine{
		fn:      fn,
		state:   state,
		resume:  make(chan resumeMsg),
		yield:   make(chan yieldMsg),
		closing: make(chan struct{}),
		exited:  make(chan struct{}),
	}
}

// next resumes the flow with a value or an error and waits for its next step.
func (c *coroutine) next(value any, err error) yieldMsg {
	if c.finished || c.closed {
		return yieldMsg{done: true}
	}
	if !c.started {
		c.started = true
		if err != nil {
			c.finished = true
			close(c.exited)
			return yieldMsg{done: true, err: err}
		}
		go c.run()
	} else {
		c.resume <- resumeMsg{value: value, err: err}
	}
	msg := <-c.yield
	if msg.done {
		c.finished = true
	}
	return msg
}

// close unwinds a suspended flow, running its deferred functions, and waits for it to exit.
func (c *coroutine) close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.closing)
	if c.started {
		<-c.exited
	}
}

func (c *coroutine) run() {
	defer close(c.exited)
	var err error
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(closeSignal); ok {
				return
			}
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
		select {
		case c.yield <- yieldMsg{done: true, err: err}:
		case <-c.closing:
		}
	}()
	err = c.fn(&Yielder{co: c}, c.state)
}

func (c *coroutine) suspend(step Step) (any, error) {
	select {
	case c.yield <- yieldMsg{step: step}:
	case <-c.closing:
		panic(closeSignal{})
	}
	select {
	case r := <-c.resume:
		return r.value, r.err
	case <-c.closing:
		panic(closeSignal{})
	}
}
