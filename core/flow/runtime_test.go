package flow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var yesNo = Options{Opt("yes", "Yes"), Opt("no", "No")}

func TestChoiceCallbackResolvesWithKey(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)

	var got string
	fn := func(y *Yielder, state State) error {
		answer, _, err := y.Ask(RequestChoice(state, yesNo, "Pick"))
		if err != nil {
			return err
		}
		got = answer
		return y.Do(Response(state, "you said "+answer))
	}
	require.NoError(t, r.Start(ctx, tr, fn, nil))

	sess := session(t, r, 1)
	p, ok := sess.Pending.(*PendingChoice)
	require.True(t, ok)
	require.Equal(t, []string{"yes", "no"}, p.Options.Keys())

	prompt := tr.last()
	require.Equal(t, "Pick", prompt.Msg.Text)
	require.Equal(t, Keyboard{{{Text: "Yes", Data: "yes"}}, {{Text: "No", Data: "no"}}}, prompt.Msg.Keyboard)
	require.Equal(t, prompt.ID, p.MessageID)

	require.NoError(t, r.HandleCallback(ctx, tr.callback(prompt.ID), "yes"))
	require.Equal(t, "yes", got)
	require.Nil(t, sess.Pending)
	require.False(t, r.Active(tr))
	require.Equal(t, "you said yes", tr.last().Msg.Text)
	require.Equal(t, 1, tr.acks)
	require.Equal(t, []keyboardEdit{{ID: prompt.ID}}, tr.edits)
}

func TestChoiceUnknownKeyKeepsPending(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)

	resumed := false
	require.NoError(t, r.Start(ctx, tr, func(y *Yielder, state State) error {
		_, _, err := y.Ask(RequestChoice(state, yesNo, "Pick"))
		resumed = true
		return err
	}, nil))

	sess := session(t, r, 1)
	before := sess.Pending
	prompt := tr.last()
	tr.reset()

	require.NoError(t, r.HandleCallback(ctx, tr.callback(prompt.ID), "maybe"))
	require.False(t, resumed)
	require.Same(t, before, sess.Pending)
	require.Equal(t, []string{"runtime.unexpectedChoice"}, tr.texts())
	require.Equal(t, 1, tr.acks)
	require.Empty(t, tr.edits)
}

func TestChoiceTextRejectedWithoutCustom(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)

	resumed := false
	require.NoError(t, r.Start(ctx, tr, func(y *Yielder, state State) error {
		_, _, err := y.Ask(RequestChoice(state, yesNo, "Pick"))
		resumed = true
		return err
	}, nil))

	sess := session(t, r, 1)
	before := sess.Pending
	tr.reset()

	require.NoError(t, r.HandleText(ctx, tr, "yes"))
	require.False(t, resumed)
	require.Same(t, before, sess.Pending)
	require.Equal(t, []string{"runtime.selectWithButton"}, tr.texts())
	require.Empty(t, tr.edits)
	require.True(t, r.Active(tr))
}

func TestChoiceCustomTextPassesThroughVerbatim(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)

	var got string
	require.NoError(t, r.Start(ctx, tr, func(y *Yielder, state State) error {
		answer, _, err := y.Ask(RequestChoice(state, yesNo, "Pick", AllowCustom()))
		got = answer
		return err
	}, nil))
	prompt := tr.last()

	require.NoError(t, r.HandleText(ctx, tr, "  MayBe "))
	require.Equal(t, "  MayBe ", got)
	require.Equal(t, []keyboardEdit{{ID: prompt.ID}}, tr.edits)
	require.False(t, r.Active(tr))
}

func TestChoiceDeletePreviousDeletesPrompt(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)

	require.NoError(t, r.Start(ctx, tr, func(y *Yielder, state State) error {
		_, _, err := y.Ask(RequestChoice(state, yesNo, "Pick", DeletePrevious()))
		return err
	}, nil))
	prompt := tr.last()

	require.NoError(t, r.HandleCallback(ctx, tr.callback(prompt.ID), "no"))
	require.Equal(t, []int{prompt.ID}, tr.deleted)
	require.Empty(t, tr.edits)
}

func TestStringValidator(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)

	var got string
	nonEmpty := func(s string) bool { return len(s) > 0 }
	require.NoError(t, r.Start(ctx, tr, func(y *Yielder, state State) error {
		name, _, err := y.Ask(RequestString(state, "Name?", WithValidator(nonEmpty)))
		got = name
		return err
	}, nil))

	require.Equal(t, "Name?", tr.last().Msg.Text)
	require.Empty(t, tr.last().Msg.Keyboard)

	sess := session(t, r, 1)
	before := sess.Pending
	tr.reset()

	require.NoError(t, r.HandleText(ctx, tr, ""))
	require.Equal(t, []string{"runtime.invalidInput"}, tr.texts())
	require.Same(t, before, sess.Pending)
	require.Empty(t, got)

	require.NoError(t, r.HandleText(ctx, tr, "Bob"))
	require.Equal(t, "Bob", got)
	require.Nil(t, sess.Pending)
	require.False(t, r.Active(tr))
}

func TestCancellableStringResolvesWithNil(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)

	var (
		answer string
		ok     = true
	)
	require.NoError(t, r.Start(ctx, tr, func(y *Yielder, state State) error {
		var err error
		answer, ok, err = y.Ask(RequestString(state, "Comment?", Cancellable()))
		if err != nil {
			return err
		}
		return y.Do(Response(state, "skipped"))
	}, nil))

	prompt := tr.last()
	require.Equal(t, Keyboard{{{Text: "buttons.cancel", Data: CancelPayload}}}, prompt.Msg.Keyboard)
	require.Equal(t, prompt.ID, session(t, r, 1).Pending.(*PendingString).MessageID)

	require.NoError(t, r.HandleCallback(ctx, tr.callback(prompt.ID), "other"))
	require.True(t, r.Active(tr))
	require.Equal(t, 1, tr.acks)

	require.NoError(t, r.HandleCallback(ctx, tr.callback(prompt.ID), CancelPayload))
	require.False(t, ok)
	require.Empty(t, answer)
	require.Equal(t, 2, tr.acks)
	require.Equal(t, []keyboardEdit{{ID: prompt.ID}}, tr.edits)
	require.Equal(t, "skipped", tr.last().Msg.Text)
	require.False(t, r.Active(tr))
}

func TestUncaughtAwaitFailureTearsDown(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)

	require.NoError(t, r.Start(ctx, tr, func(y *Yielder, state State) error {
		_, err := y.Yield(Await(func(context.Context) (any, error) {
			return nil, errors.New("db down")
		}))
		return err
	}, nil))

	require.False(t, r.Active(tr))
	require.Equal(t, []string{"runtime.operationError"}, tr.texts())
}

func TestCaughtAwaitFailureContinues(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)

	require.NoError(t, r.Start(ctx, tr, func(y *Yielder, state State) error {
		if _, err := y.Yield(Await(func(context.Context) (any, error) {
			return nil, errors.New("db down")
		})); err != nil {
			if err := y.Do(Response(state, "recovered")); err != nil {
				return err
			}
		}
		v, err := y.Yield(Await(func(context.Context) (any, error) { return 7, nil }))
		if err != nil {
			return err
		}
		return y.Do(Response(state, "got", v))
	}, nil))

	require.False(t, r.Active(tr))
	require.Equal(t, []string{"recovered", "got"}, tr.texts())
	require.Equal(t, 7, tr.last().Msg.Extra)
}

func TestPanickingAwaitIsInjected(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)

	var injected error
	require.NoError(t, r.Start(ctx, tr, func(y *Yielder, state State) error {
		_, injected = y.Yield(Await(func(context.Context) (any, error) { panic("boom") }))
		return nil
	}, nil))

	var pe *PanicError
	require.ErrorAs(t, injected, &pe)
	require.Equal(t, "boom", pe.Value)
	require.Empty(t, tr.texts())
}

func TestFlowErrorAndPanicNotifyGenericError(t *testing.T) {
	ctx := context.Background()
	cases := map[string]Flow{
		"error": func(y *Yielder, state State) error { return errors.New("boom") },
		"panic": func(y *Yielder, state State) error { panic("boom") },
		"after prompt": func(y *Yielder, state State) error {
			if err := y.Do(Response(state, "hi")); err != nil {
				return err
			}
			return errors.New("boom")
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			r := newTestRuntime(t)
			tr := newFakeTransport(1)
			require.NoError(t, r.Start(ctx, tr, fn, nil))
			require.False(t, r.Active(tr))
			texts := tr.texts()
			require.Equal(t, "runtime.flowError", texts[len(texts)-1])
		})
	}
}

func TestCallAndValueSteps(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(5)

	initial := State{"a": 1}
	var (
		called any
		plain  any
		final  State
	)
	require.NoError(t, r.Start(ctx, tr, func(y *Yielder, state State) error {
		var err error
		called, err = y.Yield(Call(func(st State, tt Transport) (any, error) {
			st["user"] = tt.UserID()
			return 42, nil
		}))
		if err != nil {
			return err
		}
		plain, _ = y.Yield(Value("plain"))
		final = state
		return nil
	}, initial))

	require.Equal(t, 42, called)
	require.Equal(t, "plain", plain)
	require.Equal(t, State{"a": 1, "user": int64(5)}, final)
	require.Equal(t, State{"a": 1}, initial)
}

func TestCallFailureIsInjected(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)

	require.NoError(t, r.Start(ctx, tr, func(y *Yielder, state State) error {
		_, err := y.Yield(Call(func(State, Transport) (any, error) { return nil, errors.New("nope") }))
		return err
	}, nil))
	require.Equal(t, []string{"runtime.operationError"}, tr.texts())
}

func TestCancelEffectTearsDown(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)

	unwound := false
	require.NoError(t, r.Start(ctx, tr, func(y *Yielder, state State) error {
		defer func() { unwound = true }()
		if err := y.Do(Cancelled(state, "")); err != nil {
			return err
		}
		return y.Do(Response(state, "unreachable"))
	}, nil))

	require.True(t, unwound)
	require.False(t, r.Active(tr))
	require.Equal(t, []string{"bot.actionCancelled"}, tr.texts())
}

func TestStartInterruptsRunningFlow(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)

	var firstErr error
	first := func(y *Yielder, state State) error {
		_, _, err := y.Ask(RequestChoice(state, Options{Opt("a", "A")}, "first"))
		firstErr = err
		// anything yielded after the interruption is dropped
		_ = y.Do(Response(state, "bye"))
		return err
	}
	second := func(y *Yielder, state State) error {
		_, _, err := y.Ask(RequestString(state, "second"))
		return err
	}

	require.NoError(t, r.Start(ctx, tr, first, nil))
	firstPrompt := tr.last()

	require.NoError(t, r.Start(ctx, tr, second, nil))
	require.ErrorIs(t, firstErr, ErrFlowInterrupted)
	require.Equal(t, 1, r.Sessions())
	require.Equal(t, "s2", session(t, r, 1).ID)
	require.Equal(t, []keyboardEdit{{ID: firstPrompt.ID}}, tr.edits)
	require.Equal(t, []string{"first", "second"}, tr.texts())
}

func TestUnidentifiedUser(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(0)

	err := r.Start(ctx, tr, func(y *Yielder, state State) error { return nil }, nil)
	require.ErrorIs(t, err, ErrNoUser)
	require.Equal(t, []string{"runtime.userNotFound"}, tr.texts())
	require.Zero(t, r.Sessions())

	require.ErrorIs(t, r.HandleText(ctx, tr, "hi"), ErrNoUser)
	require.ErrorIs(t, r.HandleCallback(ctx, tr, "x"), ErrNoUser)
}

func TestChatIdentityFallback(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(0)
	tr.chat = 77

	require.NoError(t, r.Start(ctx, tr, func(y *Yielder, state State) error {
		_, _, err := y.Ask(RequestString(state, ""))
		return err
	}, nil))
	require.True(t, r.Store().Has(77))
	require.Equal(t, "runtime.enterText", tr.last().Msg.Text)
}

func TestNoActiveFlow(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)

	require.NoError(t, r.HandleText(ctx, tr, "hello"))
	require.NoError(t, r.HandleCallback(ctx, tr, "yes"))
	require.Equal(t, []string{"runtime.noActiveFlow", "runtime.noActiveFlow"}, tr.texts())
	require.Equal(t, 1, tr.acks)
}

func TestRouteTextWithoutPending(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)

	res := r.routeText(ctx, tr, &Session{ID: "x"}, "hello")
	require.Equal(t, actionWait, res.action)
	require.Equal(t, []string{"runtime.responseNotExpected"}, tr.texts())
}

func TestExternalCancel(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)

	unwound := false
	require.NoError(t, r.Start(ctx, tr, func(y *Yielder, state State) error {
		defer func() { unwound = true }()
		_, _, err := y.Ask(RequestChoice(state, yesNo, "Pick"))
		return err
	}, nil))
	prompt := tr.last()

	require.True(t, r.Cancel(ctx, tr))
	require.True(t, unwound)
	require.False(t, r.Active(tr))
	require.Equal(t, []keyboardEdit{{ID: prompt.ID}}, tr.edits)
	require.False(t, r.Cancel(ctx, tr))
}

func TestCancelUserNotifiesOnSessionTransport(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(9)

	require.NoError(t, r.Start(ctx, tr, func(y *Yielder, state State) error {
		_, _, err := y.Ask(RequestString(state, "Title?"))
		return err
	}, nil))

	require.True(t, r.CancelUser(ctx, UserKey(9)))
	require.False(t, r.Active(tr))
	require.Equal(t, "bot.actionCancelled", tr.last().Msg.Text)
	require.False(t, r.CancelUser(ctx, UserKey(9)))
}

func TestCloseUnwindsEverySession(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)

	var mu sync.Mutex
	unwound := 0
	fn := func(y *Yielder, state State) error {
		defer func() {
			mu.Lock()
			unwound++
			mu.Unlock()
		}()
		_, _, err := y.Ask(RequestString(state, "?"))
		return err
	}
	a, b := newFakeTransport(1), newFakeTransport(2)
	require.NoError(t, r.Start(ctx, a, fn, nil))
	require.NoError(t, r.Start(ctx, b, fn, nil))
	require.Equal(t, 2, r.Sessions())

	a.reset()
	b.reset()
	r.Close(ctx)
	require.Zero(t, r.Sessions())
	require.Equal(t, 2, unwound)
	require.Empty(t, a.sent)
	require.Empty(t, b.edits)
}

func TestSnapshotReportsPending(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(9)

	require.NoError(t, r.Start(ctx, tr, func(y *Yielder, state State) error {
		_, err := y.AskDate(RequestDate(state, ""))
		return err
	}, nil))

	infos := r.Snapshot()
	require.Len(t, infos, 1)
	require.Equal(t, UserKey(9), infos[0].User)
	require.Equal(t, PendingKindDate, infos[0].Pending)
	require.Equal(t, testNow, infos[0].StartedAt)
}

func TestUsersRunInParallel(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)

	const users = 16
	answers := make([]string, users)
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr := newFakeTransport(int64(i + 1))
			err := r.Start(ctx, tr, func(y *Yielder, state State) error {
				s, _, err := y.Ask(RequestString(state, "?"))
				answers[i] = s
				return err
			}, nil)
			if err != nil {
				return
			}
			_ = r.HandleText(ctx, tr, "answer")
		}(i)
	}
	wg.Wait()

	for i, a := range answers {
		require.Equal(t, "answer", a, "user %d", i+1)
	}
	require.Zero(t, r.Sessions())
}

func TestSameUserEventsAreSerialized(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)

	var mu sync.Mutex
	var got []string
	require.NoError(t, r.Start(ctx, tr, func(y *Yielder, state State) error {
		s, _, err := y.Ask(RequestString(state, "?"))
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
		return err
	}, nil))

	var wg sync.WaitGroup
	for _, text := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			_ = r.HandleText(ctx, tr, text)
		}(text)
	}
	wg.Wait()

	require.Len(t, got, 1)
	notices := 0
	for _, text := range tr.texts() {
		if text == "runtime.noActiveFlow" {
			notices++
		}
	}
	require.Equal(t, 2, notices)
}

type mapLocalizer map[string]map[string]string

func (m mapLocalizer) T(lang, key string, _ map[string]string) string {
	if v, ok := m[lang][key]; ok {
		return v
	}
	return key
}

func (m mapLocalizer) List(string, string) []string { return nil }

func TestNoticesUseUserLanguage(t *testing.T) {
	ctx := context.Background()
	loc := mapLocalizer{
		"ru": {"runtime.noActiveFlow": "Нет активного сценария."},
		"en": {"runtime.noActiveFlow": "No active scenario."},
	}
	r := NewRuntime(RuntimeOptions{
		Localizer: loc,
		Language: func(_ context.Context, userID int64) string {
			if userID == 2 {
				return "ru"
			}
			return ""
		},
	})

	en, ru := newFakeTransport(1), newFakeTransport(2)
	require.NoError(t, r.HandleText(ctx, en, "hi"))
	require.NoError(t, r.HandleText(ctx, ru, "hi"))
	require.Equal(t, []string{"No active scenario."}, en.texts())
	require.Equal(t, []string{"Нет активного сценария."}, ru.texts())
}

func TestZeroRuntimeOptionsRunChoiceFlow(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(RuntimeOptions{})
	require.NotNil(t, r.Store())
	tr := newFakeTransport(3)

	choices := make(Options, 0, 2)
	choices = append(choices, Opt("b", "B"), Opt("a", "A"))
	var got string
	fn := func(y *Yielder, state State) error {
		answer, _, err := y.Ask(RequestChoice(state, choices, ""))
		got = answer
		return err
	}
	require.NoError(t, r.Start(ctx, tr, fn, nil))

	sess := session(t, r, 3)
	require.Len(t, sess.ID, 8)
	require.NotContains(t, sess.ID, "_")
	require.Equal(t, "runtime.selectOption", tr.last().Msg.Text)
	require.Equal(t, Keyboard{{{Text: "B", Data: "b"}}, {{Text: "A", Data: "a"}}}, tr.last().Msg.Keyboard)

	require.NoError(t, r.HandleCallback(ctx, tr.callback(tr.last().ID), "a"))
	require.Equal(t, "a", got)
	require.Zero(t, r.Sessions())
}
