package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/flowbot/core/logger"
)

// NoopPayload marks calendar cells that do nothing when pressed.
const NoopPayload = "noop"

const calendarTokenPrefix = "calendar_"

var (
	dayTokenRe    = regexp.MustCompile(`^calendar_day_([^_]+)_(\d{4})-(\d{2})-(\d{2})$`)
	monthTokenRe  = regexp.MustCompile(`^calendar_month_([^_]+)_(-?\d+)_(-?\d+)$`)
	cancelTokenRe = regexp.MustCompile(`^calendar_cancel_([^_]+)$`)
)

// CalendarDate is a day picked on the calendar. Month is zero-based.
type CalendarDate struct {
	Year  int
	Month int
	Day   int
}

// DateOf converts t to a CalendarDate in t's location.
func DateOf(t time.Time) CalendarDate {
	return CalendarDate{Year: t.Year(), Month: int(t.Month()) - 1, Day: t.Day()}
}

// Time returns midnight of the date in loc (UTC when nil).
func (d CalendarDate) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, time.Month(d.Month+1), d.Day, 0, 0, 0, 0, loc)
}

// String formats the date as YYYY-MM-DD.
func (d CalendarDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month+1, d.Day)
}

// TokenKind tags a parsed calendar callback token.
type TokenKind int

const (
	TokenDay TokenKind = iota + 1
	TokenMonth
	TokenCancel
)

// CalendarToken is a decoded calendar callback payload.
type CalendarToken struct {
	Kind   TokenKind
	Prefix string
	// Date is set for TokenDay.
	Date CalendarDate
	// Year and Month are set for TokenMonth; Month may lie outside 0..11.
	Year  int
	Month int
}

// DayToken encodes a day selection.
func DayToken(prefix string, d CalendarDate) string {
	return fmt.Sprintf("calendar_day_%s_%s", prefix, d.String())
}

// MonthToken encodes a month navigation target.
func MonthToken(prefix string, year, month int) string {
	return fmt.Sprintf("calendar_month_%s_%d_%d", prefix, year, month)
}

// CancelToken encodes the calendar cancel button.
func CancelToken(prefix string) string {
	return "calendar_cancel_" + prefix
}

// IsCalendarData reports whether a callback payload belongs to a calendar.
func IsCalendarData(data string) bool {
	return strings.HasPrefix(data, calendarTokenPrefix)
}

// ParseCalendarToken decodes one of the three token shapes.
func ParseCalendarToken(data string) (CalendarToken, bool) {
	if !IsCalendarData(data) {
		return CalendarToken{}, false
	}
	if m := cancelTokenRe.FindStringSubmatch(data); m != nil {
		return CalendarToken{Kind: TokenCancel, Prefix: m[1]}, true
	}
	if m := dayTokenRe.FindStringSubmatch(data); m != nil {
		y, _ := strconv.Atoi(m[2])
		mm, _ := strconv.Atoi(m[3])
		dd, _ := strconv.Atoi(m[4])
		d := CalendarDate{Year: y, Month: mm - 1, Day: dd}
		// reject dates that would roll over, e.g. 2024-02-31
		if DateOf(d.Time(time.UTC)) != d {
			return CalendarToken{}, false
		}
		return CalendarToken{Kind: TokenDay, Prefix: m[1], Date: d}, true
	}
	if m := monthTokenRe.FindStringSubmatch(data); m != nil {
		y, errY := strconv.Atoi(m[2])
		mo, errM := strconv.Atoi(m[3])
		if errY != nil || errM != nil {
			return CalendarToken{}, false
		}
		return CalendarToken{Kind: TokenMonth, Prefix: m[1], Year: y, Month: mo}, true
	}
	return CalendarToken{}, false
}

// NormalizeMonth rolls a month index outside 0..11 into the adjacent years.
func NormalizeMonth(year, month int) (int, int) {
	t := time.Date(year, time.Month(month+1), 1, 0, 0, 0, 0, time.UTC)
	return t.Year(), int(t.Month()) - 1
}

// CalendarLabels holds the localized texts of a calendar keyboard.
type CalendarLabels struct {
	// Months lists month names from January.
	Months []string
	// Weekdays lists day abbreviations from Monday.
	Weekdays []string
	Cancel   string
}

var defaultWeekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// RenderCalendar builds the keyboard for the given (possibly out-of-range) month.
func RenderCalendar(year, month int, prefix string, labels CalendarLabels) Keyboard {
	ry, rm := NormalizeMonth(year, month)
	first := time.Date(ry, time.Month(rm+1), 1, 0, 0, 0, 0, time.UTC)
	daysInMonth := time.Date(ry, time.Month(rm+2), 0, 0, 0, 0, 0, time.UTC).Day()
	// Monday-start week: Mon=0 .. Sun=6
	offset := (int(first.Weekday()) + 6) % 7

	kb := make(Keyboard, 0, 9)
	kb = append(kb, []Button{
		{Text: "<", Data: MonthToken(prefix, ry, rm-1)},
		{Text: monthLabel(labels.Months, rm) + " " + strconv.Itoa(ry), Data: NoopPayload},
		{Text: ">", Data: MonthToken(prefix, ry, rm+1)},
	})

	weekdays := labels.Weekdays
	if len(weekdays) != 7 {
		weekdays = defaultWeekdays
	}
	header := make([]Button, 0, 7)
	for _, d := range weekdays {
		header = append(header, Button{Text: d, Data: NoopPayload})
	}
	kb = append(kb, header)

	row := make([]Button, 0, 7)
	for i := 0; i < offset; i++ {
		row = append(row, blankButton())
	}
	for day := 1; day <= daysInMonth; day++ {
		d := CalendarDate{Year: ry, Month: rm, Day: day}
		row = append(row, Button{Text: strconv.Itoa(day), Data: DayToken(prefix, d)})
		if len(row) == 7 {
			kb = append(kb, row)
			row = make([]Button, 0, 7)
		}
	}
	if len(row) > 0 {
		for len(row) < 7 {
			row = append(row, blankButton())
		}
		kb = append(kb, row)
	}

	cancel := labels.Cancel
	if cancel == "" {
		cancel = "Cancel"
	}
	kb = append(kb, []Button{{Text: cancel, Data: CancelToken(prefix)}})
	return kb
}

func blankButton() Button {
	return Button{Text: " ", Data: NoopPayload}
}

func monthLabel(months []string, month int) string {
	if len(months) == 12 && months[month] != "" {
		return months[month]
	}
	return time.Month(month + 1).String()
}

// calendarPrefix strips underscores so tokens stay parseable.
func calendarPrefix(prefix string) string {
	return strings.ReplaceAll(strings.TrimSpace(prefix), "_", "-")
}

// handleCalendar applies a callback to a pending date. handled is false when data is not a calendar token.
func (r *Runtime) handleCalendar(ctx context.Context, t Transport, sess *Session, p *PendingDate, data string) (res resolution, handled bool) {
	tok, ok := ParseCalendarToken(data)
	if !ok {
		return resolution{}, false
	}
	if tok.Prefix != p.Prefix {
		r.ack(ctx, t)
		logger.Debug(ctx, "flow", "calendar.stale",
			slog.String("prefix", tok.Prefix),
			slog.String("expected", p.Prefix),
		)
		return resolution{action: actionWait}, true
	}

	switch tok.Kind {
	case TokenDay:
		sess.Pending = nil
		r.clearKeyboard(ctx, t, calendarMessage(t, p))
		r.ack(ctx, t)
		return resolution{action: actionProceed, input: tok.Date}, true

	case TokenMonth:
		ty, tm := NormalizeMonth(tok.Year, tok.Month)
		cy, cm := NormalizeMonth(p.CalendarYear, p.CalendarMonth)
		if ty == cy && tm == cm {
			r.ack(ctx, t)
			return resolution{action: actionWait}, true
		}
		p.CalendarYear, p.CalendarMonth = ty, tm
		kb := RenderCalendar(ty, tm, p.Prefix, r.calendarLabels(r.language(ctx, t)))
		if err := t.EditKeyboard(ctx, calendarMessage(t, p), kb); err != nil && !errors.Is(err, ErrNotModified) {
			logger.Warn(ctx, "flow", "calendar.render_failed",
				slog.String("err", err.Error()),
			)
		}
		r.ack(ctx, t)
		return resolution{action: actionWait}, true

	case TokenCancel:
		sess.Pending = nil
		r.clearKeyboard(ctx, t, calendarMessage(t, p))
		r.ack(ctx, t)
		r.notify(ctx, t, "bot.actionCancelled")
		return resolution{action: actionCancel}, true
	}
	return resolution{}, false
}

// calendarMessage prefers the message the callback came from.
func calendarMessage(t Transport, p *PendingDate) int {
	if id := t.MessageID(); id != 0 {
		return id
	}
	return p.MessageID
}

func (r *Runtime) calendarLabels(lang string) CalendarLabels {
	if r.loc == nil {
		return CalendarLabels{}
	}
	return CalendarLabels{
		Months:   r.loc.List(lang, "calendar.months"),
		Weekdays: r.loc.List(lang, "calendar.days"),
		Cancel:   r.loc.T(lang, "calendar.cancel", nil),
	}
}
