package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/captionrelay/core/logger"
	"github.com/m3rciful/captionrelay/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/captionrelay/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// seenUpdates remembers update ids for a short while so an update wrapped by
// several routes is logged once.
type seenUpdates struct {
	mu  sync.Mutex
	ttl time.Duration
	ids map[int]time.Time
}

var received = &seenUpdates{ttl: 10 * time.Second, ids: make(map[int]time.Time)}

// first reports whether id has not been seen within ttl and marks it seen.
func (s *seenUpdates) first(id int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for old, at := range s.ids {
		if now.Sub(at) > s.ttl {
			delete(s.ids, old)
		}
	}
	if _, dup := s.ids[id]; dup {
		return false
	}
	s.ids[id] = now
	return true
}

// LoggerMiddleware attaches the rid and update metadata to the handler
// context and logs one update.received line per update (debug, sampled).
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		var chatID, userID int64
		if chat := c.Chat(); chat != nil {
			chatID = chat.ID
		}
		if user := c.Sender(); user != nil {
			userID = user.ID
		}

		rid := logger.BuildRID(upd.ID, chatID, userID)
		c.Set("rid", rid)
		c.Set("update_start", time.Now())

		ctx := logger.WithRID(logger.Background(), rid)
		ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
		ctx = logger.WithLogger(ctx, logger.Component("tg"))
		tghelpers.StoreContext(c, ctx)

		if logger.ShouldSampleDebug() && received.first(upd.ID, time.Now()) {
			logger.LogEvent(ctx, logger.Component("tg"), slog.LevelDebug, "update.received", receiptAttrs(c)...)
		}
		return next(c)
	}
}

func receiptAttrs(c tele.Context) []slog.Attr {
	upd := c.Update()
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("kind", UpdateKind(upd)),
	}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}

	if upd.Callback != nil {
		key, payload := callbacks.ParseCallbackData(upd.Callback)
		if upd.Callback.Unique != "" {
			key = upd.Callback.Unique
		}
		if key != "" {
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		}
		if payload != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
		}
		return attrs
	}

	msg := c.Message()
	if msg == nil {
		return attrs
	}
	switch {
	case msg.Video != nil:
		attrs = append(attrs, slog.String("media", "video"), slog.String("caption", msg.Caption))
	case msg.Document != nil:
		attrs = append(attrs, slog.String("media", "document"), slog.String("caption", msg.Caption))
	case msg.Text != "":
		attrs = append(attrs, slog.String("text", msg.Text))
	}
	return attrs
}
