package middleware

import tele "gopkg.in/telebot.v4"

// Update kinds used for rate-limit exclusions and metrics labels.
const (
	KindCallback    = "callback"
	KindMessage     = "message"
	KindChannelPost = "channel_post"
	KindInlineQuery = "inline_query"
	KindOther       = "other"
)

// UpdateKind classifies an update by its payload.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return KindCallback
	case upd.Message != nil:
		return KindMessage
	case upd.ChannelPost != nil:
		return KindChannelPost
	case upd.Query != nil:
		return KindInlineQuery
	}
	return KindOther
}

// actorID returns the sender id, falling back to the chat id for updates
// without a sender such as channel posts.
func actorID(c tele.Context) int64 {
	if user := c.Sender(); user != nil && user.ID != 0 {
		return user.ID
	}
	if chat := c.Chat(); chat != nil {
		return chat.ID
	}
	return 0
}
