package router

import (
	"context"
	"errors"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/flow"
	tghelpers "github.com/m3rciful/flowbot/core/telegram/helpers"
	"github.com/m3rciful/flowbot/core/telegram/transport"
)

// Conversation receives the free text and button presses that no command, menu item
// or registered callback claimed. *flow.Runtime implements it.
type Conversation interface {
	HandleText(ctx context.Context, t flow.Transport, text string) error
	HandleCallback(ctx context.Context, t flow.Transport, data string) error
}

var _ Conversation = (*flow.Runtime)(nil)

// TransportFactory builds the flow transport for an update. Defaults to transport.New.
type TransportFactory func(c tele.Context) flow.Transport

func (f TransportFactory) build(c tele.Context) flow.Transport {
	if f == nil {
		return transport.New(c)
	}
	return f(c)
}

// conversationStatus maps runtime results to handler summary status.
// ErrNoUser is reported to the user by the runtime, so it is not a handler failure.
func conversationStatus(err error) (string, error) {
	if errors.Is(err, flow.ErrNoUser) {
		return "skip", nil
	}
	return "", err
}

func withConversation(c tele.Context, conv Conversation, tf TransportFactory, fn func(context.Context, Conversation, flow.Transport) error) (string, error) {
	ctx := tghelpers.BuildContext(c)
	return conversationStatus(fn(ctx, conv, tf.build(c)))
}
