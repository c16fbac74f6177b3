package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ParseCallbackData splits callback data in telebot's "\f<unique>|<payload>"
// form. The leading form feed is optional.
func ParseCallbackData(cb *tele.Callback) (unique, payload string) {
	if cb == nil {
		return "", ""
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	unique, payload, _ = strings.Cut(raw, "|")
	return strings.TrimSpace(unique), payload
}

// Key returns the handler key of cb: Unique when telebot filled it in,
// otherwise the key parsed from Data.
func Key(cb *tele.Callback) string {
	if cb != nil && cb.Unique != "" {
		return cb.Unique
	}
	key, _ := ParseCallbackData(cb)
	return key
}
