package router

import (
	"log/slog"

	tg "github.com/m3rciful/captionrelay/core/telegram"
	"github.com/m3rciful/captionrelay/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// ChannelRoute answers commands posted directly in a channel. Only commands
// registered with Channel set are considered; other posts are skipped.
func ChannelRoute(reg *tg.Registry) tg.Route {
	handler := func(c tele.Context) error {
		key, cmd, ok := reg.LookupCommand(c.Text())
		if !ok || !cmd.Channel || cmd.Handler == nil {
			skipped(c, "channel_post")
			return nil
		}
		return handled(c, "channel."+handlerName(key), cmd.Handler, slog.String("command", key))
	}

	return tg.Route{
		Endpoint: tele.OnChannelPost,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
