package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/flow"
	"github.com/m3rciful/flowbot/core/telegram/middleware"
)

// fakeContext overrides the tele.Context methods the transport touches.
type fakeContext struct {
	tele.Context
	sender   *tele.User
	chat     *tele.Chat
	callback *tele.Callback
	store    map[string]any
	acks     int
}

func (f *fakeContext) Sender() *tele.User       { return f.sender }
func (f *fakeContext) Chat() *tele.Chat         { return f.chat }
func (f *fakeContext) Callback() *tele.Callback { return f.callback }
func (f *fakeContext) Get(key string) any       { return f.store[key] }
func (f *fakeContext) Set(key string, v any)    { f.store[key] = v }
func (f *fakeContext) Recipient() tele.Recipient {
	if f.chat != nil {
		return f.chat
	}
	if f.sender != nil {
		return f.sender
	}
	return nil
}
func (f *fakeContext) Respond(...*tele.CallbackResponse) error {
	f.acks++
	return nil
}

type sendCall struct {
	to   tele.Recipient
	text string
	opts *tele.SendOptions
}

type fakeAPI struct {
	sends   []sendCall
	edits   []tele.StoredMessage
	markups []*tele.ReplyMarkup
	deletes []tele.StoredMessage
	editErr error
}

func (f *fakeAPI) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	call := sendCall{to: to, text: what.(string)}
	if len(opts) > 0 {
		call.opts = opts[0].(*tele.SendOptions)
	}
	f.sends = append(f.sends, call)
	return &tele.Message{ID: 500 + len(f.sends)}, nil
}

func (f *fakeAPI) EditReplyMarkup(msg tele.Editable, markup *tele.ReplyMarkup) (*tele.Message, error) {
	if f.editErr != nil {
		return nil, f.editErr
	}
	f.edits = append(f.edits, msg.(tele.StoredMessage))
	f.markups = append(f.markups, markup)
	return &tele.Message{}, nil
}

func (f *fakeAPI) Delete(msg tele.Editable) error {
	f.deletes = append(f.deletes, msg.(tele.StoredMessage))
	return nil
}

func newFixture() (*fakeContext, *fakeAPI, *Transport) {
	c := &fakeContext{
		sender: &tele.User{ID: 7},
		chat:   &tele.Chat{ID: 70},
		store:  map[string]any{},
	}
	a := &fakeAPI{}
	return c, a, &Transport{c: c, bot: a}
}

func TestIdentity(t *testing.T) {
	c, _, tr := newFixture()
	require.Equal(t, int64(7), tr.UserID())
	require.Equal(t, int64(70), tr.ChatID())
	require.Zero(t, tr.MessageID())

	c.callback = &tele.Callback{Message: &tele.Message{ID: 33}}
	require.Equal(t, 33, tr.MessageID())

	c.sender, c.chat = nil, nil
	key, ok := flow.ResolveUser(tr)
	require.False(t, ok)
	require.Zero(t, key)
}

func TestSendWithKeyboardAndMarkdown(t *testing.T) {
	c, a, tr := newFixture()
	id, err := tr.Send(context.Background(), flow.Message{
		Text:     "*Pick*",
		Markdown: true,
		Keyboard: flow.Keyboard{{{Text: "Yes", Data: "yes"}}},
		Extra:    &tele.ReplyMarkup{ResizeKeyboard: true},
	})
	require.NoError(t, err)
	require.Equal(t, 501, id)

	call := a.sends[0]
	require.Equal(t, c.chat, call.to)
	require.Equal(t, tele.ModeMarkdown, call.opts.ParseMode)
	require.Equal(t, [][]tele.InlineButton{{{Text: "Yes", Data: "yes"}}}, call.opts.ReplyMarkup.InlineKeyboard)
	msgs, kb := middleware.GetCounters(c)
	require.Equal(t, 1, msgs)
	require.True(t, kb)
}

func TestSendUsesExtraMarkupWithoutKeyboard(t *testing.T) {
	_, a, tr := newFixture()
	menu := &tele.ReplyMarkup{ResizeKeyboard: true}
	_, err := tr.Send(context.Background(), flow.Message{Text: "hi", Extra: menu})
	require.NoError(t, err)
	require.Same(t, menu, a.sends[0].opts.ReplyMarkup)
	require.Empty(t, a.sends[0].opts.ParseMode)
}

func TestEditAndDeleteTargetChat(t *testing.T) {
	_, a, tr := newFixture()
	ctx := context.Background()

	require.NoError(t, tr.EditKeyboard(ctx, 12, nil))
	require.NoError(t, tr.Delete(ctx, 13))
	require.Equal(t, []tele.StoredMessage{{MessageID: "12", ChatID: 70}}, a.edits)
	require.Nil(t, a.markups[0])
	require.Equal(t, []tele.StoredMessage{{MessageID: "13", ChatID: 70}}, a.deletes)
}

func TestNotModifiedIsWrapped(t *testing.T) {
	_, a, tr := newFixture()
	a.editErr = errors.New("telegram: Bad Request: message is not modified (400)")
	err := tr.EditKeyboard(context.Background(), 1, flow.Keyboard{{{Text: "x", Data: "y"}}})
	require.ErrorIs(t, err, flow.ErrNotModified)

	a.editErr = errors.New("telegram: message to edit not found (400)")
	err = tr.EditKeyboard(context.Background(), 1, nil)
	require.Error(t, err)
	require.NotErrorIs(t, err, flow.ErrNotModified)
}

func TestRespondOnlyForCallbacks(t *testing.T) {
	c, _, tr := newFixture()
	require.NoError(t, tr.Respond(context.Background()))
	require.Zero(t, c.acks)

	c.callback = &tele.Callback{}
	require.NoError(t, tr.Respond(context.Background()))
	require.Equal(t, 1, c.acks)
}
