package helpers

import (
	"context"

	"github.com/m3rciful/captionrelay/core/logger"

	tele "gopkg.in/telebot.v4"
)

const contextKey = "logger_ctx"

// StoreContext keeps ctx on c for the rest of the update.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(contextKey, ctx)
	}
}

// ContextFrom returns the context stored by StoreContext.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(contextKey).(context.Context)
	return ctx, ok && ctx != nil
}

// BuildContext returns the update's logging context, creating and storing it
// on first use. Handlers normally find it already set by LoggerMiddleware.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := ContextFrom(c); ok {
		return ctx
	}

	updateID := c.Update().ID
	chatID := ChatKey(c)
	var userID int64
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	rid, _ := c.Get("rid").(string)
	if rid == "" {
		rid = logger.BuildRID(updateID, chatID, userID)
	}

	ctx := logger.WithUpdateMeta(logger.WithRID(context.Background(), rid), updateID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	StoreContext(c, ctx)
	return ctx
}

// WithHandler names the handler in the stored context and returns it.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler != "" {
		ctx = logger.WithHandler(ctx, handler)
		StoreContext(c, ctx)
	}
	return ctx
}

// ChatKey returns the id conversations are keyed by: the chat id, or the
// sender id when the update carries no chat.
func ChatKey(c tele.Context) int64 {
	if chat := c.Chat(); chat != nil && chat.ID != 0 {
		return chat.ID
	}
	if user := c.Sender(); user != nil {
		return user.ID
	}
	return 0
}
