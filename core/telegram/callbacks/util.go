package callbacks

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// uniquePrefix marks telebot's \f<unique>|<payload> encoding.
const uniquePrefix = "\f"

// Data builds callback data in telebot's unique encoding.
func Data(unique, payload string) string {
	if payload == "" {
		return uniquePrefix + unique
	}
	return uniquePrefix + unique + "|" + payload
}

// ParseCallbackData parses Telebot's \f<unique>|<payload> encoding.
// It returns unique and payload (may be empty) and false for raw data without the prefix.
func ParseCallbackData(cb *tele.Callback) (string, string, bool) {
	if cb == nil {
		return "", "", false
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data, true
	}
	if !strings.HasPrefix(cb.Data, uniquePrefix) {
		return "", cb.Data, false
	}
	raw := strings.TrimPrefix(cb.Data, uniquePrefix)
	parts := strings.SplitN(raw, "|", 2)
	unique := strings.TrimSpace(parts[0])
	payload := ""
	if len(parts) == 2 {
		payload = parts[1]
	}
	return unique, payload, unique != ""
}

// CallbackKey returns the registry key of a unique-encoded callback, or "".
func CallbackKey(c tele.Context) string {
	k, _, _ := ParseCallbackData(c.Callback())
	return k
}

// CallbackPayload returns the payload of a unique-encoded callback or the raw data otherwise.
func CallbackPayload(c tele.Context) string {
	_, payload, _ := ParseCallbackData(c.Callback())
	return payload
}

// PayloadInt64 parses the callback payload as a decimal id.
func PayloadInt64(c tele.Context) (int64, error) {
	return strconv.ParseInt(CallbackPayload(c), 10, 64)
}
