package router

import (
	tg "github.com/m3rciful/captionrelay/core/telegram"
	tghelpers "github.com/m3rciful/captionrelay/core/telegram/helpers"
	"github.com/m3rciful/captionrelay/core/telegram/middleware"
	"github.com/m3rciful/captionrelay/core/telegram/ui"

	tele "gopkg.in/telebot.v4"
)

// FSM defines the minimal interface for a conversation state machine.
type FSM interface {
	InProgress(key int64) bool
	Handle(c tele.Context) error
}

// MessageOptions controls fallback behaviour for text and media updates.
type MessageOptions struct {
	Fallbacks ui.FallbackProvider
}

// MessageRoutes builds handlers for text, video and document routing.
// Active conversations take precedence over command aliases and fallbacks.
func MessageRoutes(fsm FSM, reg *tg.Registry, opts MessageOptions) []tg.Route {
	var unknownText, unknownMedia tele.HandlerFunc
	if opts.Fallbacks != nil {
		unknownText = opts.Fallbacks.UnknownText()
		unknownMedia = opts.Fallbacks.UnknownMedia()
	}

	textHandler := func(c tele.Context) error {
		if fsm != nil && fsm.InProgress(tghelpers.ChatKey(c)) {
			return handled(c, "fsm", fsm.Handle)
		}
		if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil && !cmd.AdminOnly {
			return handled(c, handlerName(key), cmd.Handler)
		}
		if unknownText != nil {
			return handled(c, "unknown_text", unknownText)
		}
		skipped(c, "unknown_text")
		return nil
	}

	mediaHandler := func(c tele.Context) error {
		if fsm != nil && fsm.InProgress(tghelpers.ChatKey(c)) {
			return handled(c, "fsm_media", fsm.Handle)
		}
		if unknownMedia != nil {
			return handled(c, "unexpected_media", unknownMedia)
		}
		skipped(c, "unexpected_media")
		return nil
	}

	wrap := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(textHandler)},
		{Endpoint: tele.OnVideo, Handler: wrap(mediaHandler)},
		{Endpoint: tele.OnDocument, Handler: wrap(mediaHandler)},
	}
}
