package keyboard

import (
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/flow"
)

func TestInlineKeepsLayoutAndData(t *testing.T) {
	kb := flow.Keyboard{
		{{Text: "«", Data: "cal_s1_prev_2024_1"}, {Text: "Jan 2024", Data: "noop"}},
		{},
		{{Text: "Cancel", Data: "cancel"}},
	}
	got := Inline(kb)
	require.Equal(t, [][]tele.InlineButton{
		{{Text: "«", Data: "cal_s1_prev_2024_1"}, {Text: "Jan 2024", Data: "noop"}},
		{{Text: "Cancel", Data: "cancel"}},
	}, got)

	require.Nil(t, Inline(nil))
	require.Nil(t, InlineMarkup(flow.Keyboard{{}}))
	require.Len(t, InlineMarkup(kb).InlineKeyboard, 2)
}

func TestChunk(t *testing.T) {
	require.Equal(t, [][]string{{"a", "b"}, {"c"}}, Chunk([]string{"a", "b", "c"}, 2))
	require.Equal(t, [][]string{{"a"}, {"b"}}, Chunk([]string{"a", "b"}, 0))
	require.Nil(t, Chunk(nil, 3))
}

func TestReplyButtons(t *testing.T) {
	m := ReplyButtons([]string{"New note"}, nil, []string{"Language", "Help"})
	require.True(t, m.ResizeKeyboard)
	require.Len(t, m.ReplyKeyboard, 2)
	require.Equal(t, "Language", m.ReplyKeyboard[1][0].Text)
}
