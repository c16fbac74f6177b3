package router

import (
	"log/slog"

	tg "github.com/m3rciful/captionrelay/core/telegram"
	"github.com/m3rciful/captionrelay/core/telegram/callbacks"
	"github.com/m3rciful/captionrelay/core/telegram/middleware"
	"github.com/m3rciful/captionrelay/core/telegram/ui"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

// CallbackOptionsFrom takes the unknown-callback handler from a fallback provider.
func CallbackOptionsFrom(p ui.FallbackProvider) CallbackOptions {
	if p == nil {
		return CallbackOptions{}
	}
	return CallbackOptions{NotFound: p.UnknownCallback()}
}

// CallbackRoute returns a handler that routes callbacks through the registry.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}

		key := callbacks.Key(c.Callback())
		name := "callback." + handlerName(key)
		_ = c.Respond()

		if cbHandler, ok := reg.GetCallback(key); ok && cbHandler != nil {
			return handled(c, name, cbHandler, slog.String("cb_key", key))
		}

		fallback := opts.NotFound
		if fallback == nil {
			fallback = reg.CallbackNotFound()
		}
		if fallback == nil {
			fallback = func(tele.Context) error { return nil }
		}
		return handled(c, name, fallback,
			slog.String("cb_key", key),
			slog.String("reason", "not_found"),
		)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
