package flow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDayTokenRoundTrip(t *testing.T) {
	token := DayToken("flow", CalendarDate{Year: 2024, Month: 0, Day: 15})
	require.Equal(t, "calendar_day_flow_2024-01-15", token)

	tok, ok := ParseCalendarToken(token)
	require.True(t, ok)
	require.Equal(t, TokenDay, tok.Kind)
	require.Equal(t, "flow", tok.Prefix)
	require.Equal(t, CalendarDate{Year: 2024, Month: 0, Day: 15}, tok.Date)
}

func TestParseCalendarToken(t *testing.T) {
	tests := []struct {
		data string
		ok   bool
		want CalendarToken
	}{
		{"calendar_month_ab12_2024_-1", true, CalendarToken{Kind: TokenMonth, Prefix: "ab12", Year: 2024, Month: -1}},
		{"calendar_month_ab12_2024_12", true, CalendarToken{Kind: TokenMonth, Prefix: "ab12", Year: 2024, Month: 12}},
		{"calendar_cancel_ab12", true, CalendarToken{Kind: TokenCancel, Prefix: "ab12"}},
		{"calendar_day_ab12_2024-02-31", false, CalendarToken{}},
		{"calendar_day_a_b_2024-02-01", false, CalendarToken{}},
		{"calendar_month_ab12_x_1", false, CalendarToken{}},
		{"yes", false, CalendarToken{}},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got, ok := ParseCalendarToken(tt.data)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeMonthRollsYears(t *testing.T) {
	y, m := NormalizeMonth(2024, -1)
	require.Equal(t, [2]int{2023, 11}, [2]int{y, m})

	y, m = NormalizeMonth(2024, 12)
	require.Equal(t, [2]int{2025, 0}, [2]int{y, m})

	y, m = NormalizeMonth(2024, 5)
	require.Equal(t, [2]int{2024, 5}, [2]int{y, m})
}

func TestRenderCalendarLayout(t *testing.T) {
	// January 2024 starts on a Monday and has 31 days.
	kb := RenderCalendar(2024, 0, "p", CalendarLabels{})
	require.Len(t, kb, 8)

	require.Equal(t, []Button{
		{Text: "<", Data: "calendar_month_p_2024_-1"},
		{Text: "January 2024", Data: NoopPayload},
		{Text: ">", Data: "calendar_month_p_2024_1"},
	}, kb[0])
	require.Equal(t, "Mon", kb[1][0].Text)
	require.Equal(t, "calendar_day_p_2024-01-01", kb[2][0].Data)

	last := kb[6]
	require.Len(t, last, 7)
	require.Equal(t, "31", last[2].Text)
	require.Equal(t, Button{Text: " ", Data: NoopPayload}, last[3])

	require.Equal(t, []Button{{Text: "Cancel", Data: "calendar_cancel_p"}}, kb[7])
}

func TestRenderCalendarNormalizesOutOfRangeMonth(t *testing.T) {
	labels := CalendarLabels{Cancel: "x"}
	require.Equal(t, RenderCalendar(2023, 11, "p", labels), RenderCalendar(2024, -1, "p", labels))
	require.Equal(t, RenderCalendar(2025, 0, "p", labels), RenderCalendar(2024, 12, "p", labels))

	// September 2024 starts on a Sunday: six filler cells lead the first week.
	kb := RenderCalendar(2024, 8, "p", labels)
	for i := 0; i < 6; i++ {
		require.Equal(t, NoopPayload, kb[2][i].Data)
	}
	require.Equal(t, "1", kb[2][6].Text)
}

func TestRenderCalendarLabels(t *testing.T) {
	months := make([]string, 12)
	for i := range months {
		months[i] = fmt.Sprintf("M%d", i+1)
	}
	kb := RenderCalendar(2024, 2, "p", CalendarLabels{
		Months:   months,
		Weekdays: []string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"},
		Cancel:   "Отмена",
	})
	require.Equal(t, "M3 2024", kb[0][1].Text)
	require.Equal(t, "Вс", kb[1][6].Text)
	require.Equal(t, "Отмена", kb[len(kb)-1][0].Text)
}

func startDateFlow(t *testing.T, r *Runtime, tr *fakeTransport) (*CalendarDate, *bool) {
	t.Helper()
	got := new(CalendarDate)
	unwound := new(bool)
	require.NoError(t, r.Start(context.Background(), tr, func(y *Yielder, state State) error {
		defer func() { *unwound = true }()
		d, err := y.AskDate(RequestDate(state, "When?"))
		if err != nil {
			return err
		}
		*got = d
		return nil
	}, nil))
	return got, unwound
}

func TestDateRequestArmsCalendar(t *testing.T) {
	r := newTestRuntime(t)
	tr := newFakeTransport(1)
	startDateFlow(t, r, tr)

	prompt := tr.last()
	p, ok := session(t, r, 1).Pending.(*PendingDate)
	require.True(t, ok)
	require.Equal(t, PendingDate{Prefix: "s1", CalendarYear: 2024, CalendarMonth: 0, MessageID: prompt.ID}, *p)
	require.Equal(t, "When?", prompt.Msg.Text)
	require.Equal(t, RenderCalendar(2024, 0, "s1", CalendarLabels{}), prompt.Msg.Keyboard)
}

func TestDateRequestDegradesWhenCalendarFails(t *testing.T) {
	r := newTestRuntime(t)
	tr := newFakeTransport(1)
	tr.failKeyboardSends = true
	startDateFlow(t, r, tr)

	require.Equal(t, []string{"When?"}, tr.texts())
	require.Empty(t, tr.last().Msg.Keyboard)
	_, ok := session(t, r, 1).Pending.(*PendingDate)
	require.True(t, ok)
}

func TestCalendarDaySelection(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)
	got, _ := startDateFlow(t, r, tr)
	prompt := tr.last()
	sess := session(t, r, 1)

	data := DayToken("s1", CalendarDate{Year: 2024, Month: 1, Day: 29})
	require.NoError(t, r.HandleCallback(ctx, tr.callback(prompt.ID), data))
	require.Equal(t, CalendarDate{Year: 2024, Month: 1, Day: 29}, *got)
	require.Nil(t, sess.Pending)
	require.False(t, r.Active(tr))
	require.Equal(t, []keyboardEdit{{ID: prompt.ID}}, tr.edits)
	require.Equal(t, 1, tr.acks)
}

func TestCalendarStalePrefixIgnored(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)
	got, _ := startDateFlow(t, r, tr)
	prompt := tr.last()
	sess := session(t, r, 1)
	p := sess.Pending.(*PendingDate)
	before := *p
	tr.reset()

	for _, data := range []string{
		DayToken("old", CalendarDate{Year: 2024, Month: 0, Day: 20}),
		MonthToken("old", 2024, 3),
		CancelToken("old"),
	} {
		require.NoError(t, r.HandleCallback(ctx, tr.callback(prompt.ID), data))
	}

	require.Equal(t, 3, tr.acks)
	require.Empty(t, tr.sent)
	require.Empty(t, tr.edits)
	require.Same(t, p, sess.Pending)
	require.Equal(t, before, *p)
	require.Equal(t, CalendarDate{}, *got)
	require.True(t, r.Active(tr))
}

func TestCalendarMonthNavigation(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)
	startDateFlow(t, r, tr)
	prompt := tr.last()
	p := session(t, r, 1).Pending.(*PendingDate)
	tr.reset()
	cb := tr.callback(prompt.ID)

	// current month, also when encoded out of range
	require.NoError(t, r.HandleCallback(ctx, cb, MonthToken("s1", 2024, 0)))
	require.NoError(t, r.HandleCallback(ctx, cb, MonthToken("s1", 2023, 12)))
	require.Empty(t, tr.edits)
	require.Equal(t, 2, tr.acks)

	require.NoError(t, r.HandleCallback(ctx, cb, MonthToken("s1", 2024, -1)))
	require.Equal(t, 2023, p.CalendarYear)
	require.Equal(t, 11, p.CalendarMonth)
	require.Equal(t, []keyboardEdit{{ID: prompt.ID, KB: RenderCalendar(2023, 11, "s1", CalendarLabels{})}}, tr.edits)
	require.Empty(t, tr.sent)
	require.True(t, r.Active(tr))
}

func TestCalendarNotModifiedSwallowed(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)
	startDateFlow(t, r, tr)
	prompt := tr.last()
	p := session(t, r, 1).Pending.(*PendingDate)
	tr.reset()
	tr.editErr = fmt.Errorf("telegram: %w", ErrNotModified)

	require.NoError(t, r.HandleCallback(ctx, tr.callback(prompt.ID), MonthToken("s1", 2024, 1)))
	require.Equal(t, 1, p.CalendarMonth)
	require.Empty(t, tr.sent)
	require.Equal(t, 1, tr.acks)

	tr.editErr = errors.New("network")
	require.NoError(t, r.HandleCallback(ctx, tr.callback(prompt.ID), MonthToken("s1", 2024, 2)))
	require.Equal(t, 2, p.CalendarMonth)
	require.Empty(t, tr.sent)
}

func TestCalendarCancel(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)
	got, unwound := startDateFlow(t, r, tr)
	prompt := tr.last()
	tr.reset()

	require.NoError(t, r.HandleCallback(ctx, tr.callback(prompt.ID), CancelToken("s1")))
	require.True(t, *unwound)
	require.Equal(t, CalendarDate{}, *got)
	require.False(t, r.Active(tr))
	require.Equal(t, []string{"bot.actionCancelled"}, tr.texts())
	require.Equal(t, []keyboardEdit{{ID: prompt.ID}}, tr.edits)
	require.Equal(t, 1, tr.acks)
}

func TestCalendarRejectsText(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)
	startDateFlow(t, r, tr)
	p := session(t, r, 1).Pending
	tr.reset()

	require.NoError(t, r.HandleText(ctx, tr, "2024-01-20"))
	require.Equal(t, []string{"runtime.selectDateInCalendar"}, tr.texts())
	require.Same(t, p, session(t, r, 1).Pending)
}

func TestCalendarPrefixOption(t *testing.T) {
	ctx := context.Background()
	r := newTestRuntime(t)
	tr := newFakeTransport(1)

	require.NoError(t, r.Start(ctx, tr, func(y *Yielder, state State) error {
		_, err := y.AskDate(RequestDate(state, "", WithPrefix("due_date")))
		return err
	}, nil))
	p := session(t, r, 1).Pending.(*PendingDate)
	require.Equal(t, "due-date", p.Prefix)
	require.Equal(t, "runtime.selectDate", tr.last().Msg.Text)
}
