package keyboard

import tele "gopkg.in/telebot.v4"

// Button is an inline button. Unique selects the callback handler; Data is
// passed to it as the payload.
type Button struct {
	Text   string
	Unique string
	Data   string
}

// Remove hides a reply keyboard left by an earlier message.
func Remove() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// Inline lays rows out as an inline keyboard.
func Inline(rows ...[]Button) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.InlineKeyboard = make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		line := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			line = append(line, *markup.Data(b.Text, b.Unique, b.Data).Inline())
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, line)
	}
	return markup
}
