// Package commands describes slash commands and parses them out of message text.
package commands

import (
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Command is a slash command with its handler and menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands run only for the configured admin and are never listed.
	AdminOnly bool
	Hidden    bool
	// Aliases are alternative names, with or without the leading slash.
	Aliases []string
}

// Validate reports why the command cannot be registered under name.
func (c Command) Validate(name string) error {
	switch {
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		return errors.New("command name must start with a slash")
	case c.Handler == nil:
		return errors.New("command has no handler")
	case strings.TrimSpace(c.Description) == "":
		return errors.New("command has no description")
	}
	return nil
}

// Listed reports whether the command belongs in the public command menu.
func (c Command) Listed() bool { return !c.Hidden && !c.AdminOnly }

// Matches reports whether name is one of the command's aliases.
func (c Command) Matches(name string) bool {
	for _, a := range c.Aliases {
		if "/"+strings.TrimPrefix(a, "/") == name {
			return true
		}
	}
	return false
}

// Parse splits "/name@bot args" into "/name" and "args". ok is false when
// text does not start with a command.
func Parse(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", false
	}
	name, args, _ = strings.Cut(text, " ")
	if i := strings.IndexAny(name, "\n\t"); i > 0 {
		name, args = name[:i], strings.TrimSpace(text[i:])
	}
	if i := strings.IndexByte(name, '@'); i > 0 {
		name = name[:i]
	}
	return name, strings.TrimSpace(args), true
}
