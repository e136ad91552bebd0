package format

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Dialect selects one of Telegram's markdown flavours.
type Dialect uint8

const (
	// Legacy is the original Markdown parse mode.
	Legacy Dialect = iota + 1
	// V2 is MarkdownV2 outside code entities.
	V2
	// V2Code is MarkdownV2 inside pre and code entities.
	V2Code
)

var escapers = map[Dialect]*strings.Replacer{
	Legacy: replacerFor("_*`["),
	V2:     replacerFor("_*[]()~`>#+-=|{}.!\\"),
	V2Code: replacerFor("`\\"),
}

func replacerFor(special string) *strings.Replacer {
	pairs := make([]string, 0, 2*len(special))
	for _, r := range special {
		pairs = append(pairs, string(r), `\`+string(r))
	}
	return strings.NewReplacer(pairs...)
}

// Escape makes user text safe to embed in a message of the given dialect.
// Unknown dialects return the text unchanged.
func Escape(d Dialect, text string) string {
	if r, ok := escapers[d]; ok {
		return r.Replace(text)
	}
	return text
}

// ParseMode is the telebot parse mode matching d.
func (d Dialect) ParseMode() tele.ParseMode {
	switch d {
	case Legacy:
		return tele.ModeMarkdown
	case V2, V2Code:
		return tele.ModeMarkdownV2
	}
	return tele.ModeDefault
}
