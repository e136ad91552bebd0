package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	ID  int
	Msg Message
}

type keyboardEdit struct {
	ID int
	KB Keyboard
}

// fakeTransport records every outbound call.
type fakeTransport struct {
	mu sync.Mutex

	user    int64
	chat    int64
	message int

	nextID  int
	sent    []sentMessage
	edits   []keyboardEdit
	deleted []int
	acks    int

	failKeyboardSends bool
	editErr           error
}

func newFakeTransport(user int64) *fakeTransport {
	return &fakeTransport{user: user, chat: user, nextID: 100}
}

// callback returns a transport for a button press on messageID by the same user.
func (f *fakeTransport) callback(messageID int) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = messageID
	return f
}

func (f *fakeTransport) UserID() int64  { return f.user }
func (f *fakeTransport) ChatID() int64  { return f.chat }
func (f *fakeTransport) MessageID() int { return f.message }

func (f *fakeTransport) Send(_ context.Context, msg Message) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failKeyboardSends && len(msg.Keyboard) > 0 {
		return 0, errors.New("send failed")
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{ID: f.nextID, Msg: msg})
	return f.nextID, nil
}

func (f *fakeTransport) EditKeyboard(_ context.Context, messageID int, kb Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, keyboardEdit{ID: messageID, KB: kb})
	return nil
}

func (f *fakeTransport) Delete(_ context.Context, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeTransport) Respond(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return nil
}

func (f *fakeTransport) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.Msg.Text)
	}
	return out
}

func (f *fakeTransport) last() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMessage{}
	}
	return f.sent[len(f.sent)-1]
}

// reset forgets recorded calls but keeps message ids growing.
func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
	f.edits = nil
	f.deleted = nil
	f.acks = 0
	f.message = 0
}

var testNow = time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	var n int
	var mu sync.Mutex
	return NewRuntime(RuntimeOptions{
		Now: func() time.Time { return testNow },
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("s%d", n)
		},
	})
}

func session(t *testing.T, r *Runtime, user int64) *Session {
	t.Helper()
	sess, ok := r.Store().Get(UserKey(user))
	require.True(t, ok, "expected an active session for %d", user)
	return sess
}
