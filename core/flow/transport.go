package flow

import (
	"context"
	"errors"
)

var (
	// ErrNotModified is wrapped by transports when an edit would not change the message.
	ErrNotModified = errors.New("flow: message is not modified")
	// ErrNoUser is returned when an inbound event carries neither sender nor chat identity.
	ErrNoUser = errors.New("flow: cannot identify user")
)

// Button is a single inline control. Data is sent back verbatim as callback payload.
type Button struct {
	Text string
	Data string
}

// Keyboard is a transport-neutral inline keyboard laid out in rows.
type Keyboard [][]Button

// Message describes an outbound chat message.
type Message struct {
	Text     string
	Markdown bool
	Keyboard Keyboard
	// Extra is handed to the transport untouched (e.g. a reply keyboard).
	Extra any
}

// Transport is the per-event channel back to the user.
type Transport interface {
	// UserID returns the sender id or 0 when the event has no sender.
	UserID() int64
	// ChatID returns the chat id or 0 when the event has no chat.
	ChatID() int64
	// MessageID returns the message the triggering callback is attached to, or 0.
	MessageID() int

	Send(ctx context.Context, msg Message) (int, error)
	// EditKeyboard replaces the inline keyboard of a message; nil clears it.
	EditKeyboard(ctx context.Context, messageID int, kb Keyboard) error
	Delete(ctx context.Context, messageID int) error
	// Respond acknowledges the callback that triggered the event.
	Respond(ctx context.Context) error
}

// UserKey identifies the owner of a session.
type UserKey int64

// ResolveUser prefers the sender identity and falls back to the chat.
func ResolveUser(t Transport) (UserKey, bool) {
	if t == nil {
		return 0, false
	}
	if id := t.UserID(); id != 0 {
		return UserKey(id), true
	}
	if id := t.ChatID(); id != 0 {
		return UserKey(id), true
	}
	return 0, false
}
