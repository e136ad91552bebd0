package keyboard

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/flow"
)

// ReplyButtons builds a reply keyboard from rows of text.
func ReplyButtons(rows ...[]string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true}
	var keyboard []tele.Row
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		var buttons []tele.Btn
		for _, label := range row {
			buttons = append(buttons, markup.Text(label))
		}
		keyboard = append(keyboard, markup.Row(buttons...))
	}
	markup.Reply(keyboard...)
	return markup
}

// Chunk splits labels into rows with up to n labels per row.
// If n <= 1, every label gets its own row.
func Chunk(labels []string, n int) [][]string {
	if n <= 1 {
		n = 1
	}
	var rows [][]string
	for i := 0; i < len(labels); i += n {
		end := min(i+n, len(labels))
		rows = append(rows, labels[i:end])
	}
	return rows
}

// Inline converts a flow keyboard to raw inline buttons.
// Callback data is passed verbatim so flows receive exactly what they encoded.
func Inline(kb flow.Keyboard) [][]tele.InlineButton {
	if len(kb) == 0 {
		return nil
	}
	inline := make([][]tele.InlineButton, 0, len(kb))
	for _, row := range kb {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			r = append(r, tele.InlineButton{Text: b.Text, Data: b.Data})
		}
		inline = append(inline, r)
	}
	return inline
}

// InlineMarkup wraps Inline into a reply markup, or returns nil for an empty keyboard.
func InlineMarkup(kb flow.Keyboard) *tele.ReplyMarkup {
	inline := Inline(kb)
	if len(inline) == 0 {
		return nil
	}
	return &tele.ReplyMarkup{InlineKeyboard: inline}
}
