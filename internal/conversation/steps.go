package conversation

import (
	"fmt"
	"log/slog"

	"github.com/m3rciful/captionrelay/core/logger"
	tghelpers "github.com/m3rciful/captionrelay/core/telegram/helpers"
	"github.com/m3rciful/captionrelay/core/telegram/state"
	"github.com/m3rciful/captionrelay/internal/relay"

	tele "gopkg.in/telebot.v4"
)

func (f *Flow) onRemoveWord(c tele.Context, key int64, ev Event) error {
	switch ev.Kind {
	case EventText:
		if ev.Text == "" {
			return nil
		}
		f.transition(c, key, StateAwaitRemoveWord, StateAwaitAddWord, func(d *Draft) { d.RemoveWord = ev.Text })
		return f.reply(c, msgAskAdd)
	case EventVideo, EventDocument:
		f.logGuidance(c, ErrNotConfigured)
		return f.reply(c, msgNotConfigured)
	}
	return nil
}

func (f *Flow) onAddWord(c tele.Context, key int64, ev Event) error {
	switch ev.Kind {
	case EventText:
		if ev.Text == "" {
			return nil
		}
		f.transition(c, key, StateAwaitAddWord, StateAwaitChannel, func(d *Draft) { d.AddWord = ev.Text })
		return f.reply(c, msgAskChannel)
	case EventVideo, EventDocument:
		f.logGuidance(c, ErrNotConfigured)
		return f.reply(c, msgNotConfigured)
	}
	return nil
}

func (f *Flow) onChannel(c tele.Context, key int64, ev Event) error {
	switch ev.Kind {
	case EventText:
		if ev.Text == "" {
			return nil
		}
		dest, err := relay.ParseDestination(ev.Text)
		if err != nil {
			f.logGuidance(c, err)
			return f.reply(c, msgInvalidChannel)
		}
		f.transition(c, key, StateAwaitChannel, StateAwaitMedia, func(d *Draft) { d.Channel = dest })
		if f.opts.Mode == ModeInstant {
			return f.reply(c, msgReadyInstant)
		}
		return f.reply(c, msgReadyBatch)
	case EventVideo, EventDocument:
		f.logGuidance(c, ErrNoChannel)
		return f.reply(c, msgNotConfigured)
	}
	return nil
}

func (f *Flow) onMedia(c tele.Context, key int64, draft Draft, ev Event) error {
	switch ev.Kind {
	case EventVideo, EventDocument:
	case EventText:
		if f.opts.Mode == ModeInstant {
			return f.reply(c, msgSendMediaNow)
		}
		return f.reply(c, msgSendMedia)
	default:
		return nil
	}

	if draft.Channel == "" {
		f.logGuidance(c, ErrNoChannel)
		return f.reply(c, msgNoChannel)
	}

	if f.opts.Mode == ModeInstant {
		return f.relayNow(c, key, draft, ev.Item)
	}
	return f.enqueue(c, key, ev.Item)
}

func (f *Flow) relayNow(c tele.Context, key int64, draft Draft, item relay.Item) error {
	ctx, cancel := f.relayContext(c)
	defer cancel()

	res := f.engine.Relay(ctx, item, draft.Rule(), draft.Channel)
	f.store.Update(key, nil)
	if res.Outcome == relay.Success {
		return f.reply(c, msgSent)
	}
	return f.reply(c, relayFailedText(res))
}

func (f *Flow) enqueue(c tele.Context, key int64, item relay.Item) error {
	var (
		size int
		full bool
	)
	f.store.Update(key, func(s *state.Session[Draft]) {
		if len(s.Data.Queue) >= f.opts.QueueLimit {
			full = true
			return
		}
		s.Data.Queue = insertItem(s.Data.Queue, item)
		size = len(s.Data.Queue)
	})
	ctx := tghelpers.BuildContext(c)
	if full {
		logger.Warn(ctx, "conversation", "queue.full",
			slog.String("status", "skip"),
			slog.Int("queue", f.opts.QueueLimit),
		)
		return f.reply(c, fmt.Sprintf(msgQueueFull, f.opts.QueueLimit))
	}
	logger.Debug(ctx, "conversation", "queue.add",
		slog.String("status", "queued"),
		slog.String("kind", string(item.Kind)),
		slog.Int("queue", size),
	)
	return f.replyMarkup(c, queuedText(size, f.opts.QueueLimit), queueKeyboard())
}
