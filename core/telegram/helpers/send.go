package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/captionrelay/core/logger"
	"github.com/m3rciful/captionrelay/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher routes replies sent through this package via d. With no
// dispatcher set, replies are sent inline.
func SetDispatcher(d *sender.Dispatcher) {
	dispatcher.Store(d)
}

// deliver hands run to the dispatcher, or runs it inline when there is none
// or its queue cannot take the job.
func deliver(c tele.Context, action string, run func() error) error {
	d := dispatcher.Load()
	if d == nil {
		return run()
	}

	ctx := BuildContext(c)
	err := d.Enqueue(ctx, action, "sendMessage", run)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sender.ErrQueueFull), errors.Is(err, sender.ErrQueueClosed):
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", action),
			slog.String("err", err.Error()),
		)
		return run()
	default:
		return err
	}
}

// SendText sends text without a parse mode. Only the first opts value is used.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	var send []interface{}
	if len(opts) > 0 && opts[0] != nil {
		send = append(send, opts[0])
	}
	return deliver(c, "send.text", func() error {
		return c.Send(text, send...)
	})
}

// SendWithMarkup sends text with a keyboard attached.
func SendWithMarkup(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	if markup == nil {
		return SendText(c, text)
	}
	return SendText(c, text, &tele.SendOptions{ReplyMarkup: markup})
}

// SendMD sends text in legacy Markdown mode with an optional keyboard.
func SendMD(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown}
	if len(markup) > 0 {
		opts.ReplyMarkup = markup[0]
	}
	return deliver(c, "send.markdown", func() error {
		return c.Send(text, opts)
	})
}
