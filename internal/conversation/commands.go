package conversation

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/captionrelay/core/logger"
	tghelpers "github.com/m3rciful/captionrelay/core/telegram/helpers"
	"github.com/m3rciful/captionrelay/core/telegram/keyboard"
	"github.com/m3rciful/captionrelay/core/telegram/state"
	"github.com/m3rciful/captionrelay/internal/relay"

	tele "gopkg.in/telebot.v4"
)

// Start enters the setup sequence in private chats. In channels and groups
// it reports the chat's title and id instead and ends.
func (f *Flow) Start(c tele.Context) error {
	chat := c.Chat()
	if !isPrivate(chat) {
		f.end(c, chat.ID, "introspection")
		return f.chatInfo(c, chat)
	}

	key := tghelpers.ChatKey(c)
	unlock := f.settle(c, key)
	defer unlock()

	from := f.store.GetState(key)
	f.store.Start(key, StateAwaitRemoveWord, Draft{})
	logger.Info(tghelpers.BuildContext(c), "conversation", "state.transition",
		slog.String("status", "ok"),
		slog.String("from_state", string(from)),
		slog.String("to_state", string(StateAwaitRemoveWord)),
	)
	return f.reply(c, msgWelcome)
}

// ID reports chat ids. In a channel or group it describes that chat; in a
// private chat it resolves an @handle argument or reports the caller's own id.
func (f *Flow) ID(c tele.Context) error {
	chat := c.Chat()
	if !isPrivate(chat) {
		return f.chatInfo(c, chat)
	}

	args := c.Args()
	if len(args) == 0 {
		id := tghelpers.ChatKey(c)
		return f.opts.ReplyMD(c, fmt.Sprintf(msgIDHint, "`"+fmt.Sprint(id)+"`"))
	}

	handle := strings.TrimSpace(args[0])
	if !strings.HasPrefix(handle, "@") {
		handle = "@" + handle
	}
	if f.opts.Resolver == nil {
		return f.reply(c, fmt.Sprintf(msgIDFailed, handle, "lookup unavailable"))
	}
	resolved, err := f.opts.Resolver.ChatByUsername(handle)
	if err != nil || resolved == nil {
		reason := "not found"
		if err != nil {
			reason = (&relay.PlatformError{Err: err}).Reason()
			logger.Warn(tghelpers.BuildContext(c), "conversation", "id.resolve",
				slog.String("status", "fail"),
				slog.String("destination", handle),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		}
		return f.reply(c, fmt.Sprintf(msgIDFailed, handle, reason))
	}
	title := resolved.Title
	if title == "" {
		title = handle
	}
	return f.opts.ReplyMD(c, chatInfoText(title, resolved.ID, resolved.Type == tele.ChatChannel))
}

func (f *Flow) chatInfo(c tele.Context, chat *tele.Chat) error {
	title := chat.Title
	if title == "" {
		title = chat.Username
	}
	return f.opts.ReplyMD(c, chatInfoText(title, chat.ID, chat.Type == tele.ChatChannel || chat.Type == tele.ChatChannelPrivate))
}

// Upload commits the batch queue in arrival order and ends the conversation.
func (f *Flow) Upload(c tele.Context) error {
	key := tghelpers.ChatKey(c)
	unlock := f.settle(c, key)
	defer unlock()

	sess, ok := f.store.Get(key)
	if !ok || sess.State != StateAwaitMedia || sess.Data.Channel == "" {
		f.logGuidance(c, ErrNoChannel)
		return f.reply(c, msgNoChannel)
	}
	if len(sess.Data.Queue) == 0 {
		return f.reply(c, msgEmptyQueue)
	}
	f.end(c, key, "commit")
	unlock()
	return f.commit(c, sess.Data)
}

// Done finishes the session, committing any queued files first.
func (f *Flow) Done(c tele.Context) error {
	key := tghelpers.ChatKey(c)
	unlock := f.settle(c, key)
	defer unlock()

	sess, ok := f.store.Get(key)
	if !ok {
		return f.reply(c, msgNoSession)
	}
	if sess.State == StateAwaitMedia && len(sess.Data.Queue) > 0 {
		f.end(c, key, "commit")
		unlock()
		return f.commit(c, sess.Data)
	}
	f.end(c, key, "done")
	return f.replyMarkup(c, msgFinished, keyboard.Remove())
}

// commit relays a queue taken from an ended session. The chat lane is free
// by then, so files sent meanwhile find no session.
func (f *Flow) commit(c tele.Context, draft Draft) error {
	items := draft.Queue
	if err := f.reply(c, uploadingText(len(items), draft.Channel)); err != nil {
		logger.Warn(tghelpers.BuildContext(c), "conversation", "commit.notice",
			slog.String("status", "fail"),
			slog.Int("queue", len(items)),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}

	ctx, cancel := f.relayContext(c)
	defer cancel()

	rep := f.engine.RelayBatch(ctx, items, draft.Rule(), draft.Channel, func(pos int, _ relay.Item, res relay.Result) {
		if res.Outcome == relay.Success {
			return
		}
		_ = f.reply(c, itemFailedText(pos, res))
	})
	return f.reply(c, tallyText(rep))
}

// ClearQueue empties the batch queue without leaving the media step.
func (f *Flow) ClearQueue(c tele.Context) error {
	key := tghelpers.ChatKey(c)
	unlock := f.settle(c, key)
	defer unlock()

	cleared := f.store.Update(key, func(s *state.Session[Draft]) {
		s.Data.Queue = nil
	})
	if !cleared {
		return f.reply(c, msgNoSession)
	}
	return f.reply(c, msgQueueCleared)
}

// Cancel discards the conversation.
func (f *Flow) Cancel(c tele.Context) error {
	key := tghelpers.ChatKey(c)
	unlock := f.settle(c, key)
	defer unlock()

	f.end(c, key, "cancel")
	return f.replyMarkup(c, msgCancelled, keyboard.Remove())
}

// Status shows the collected answers and queue size.
func (f *Flow) Status(c tele.Context) error {
	key := tghelpers.ChatKey(c)
	unlock := f.settle(c, key)
	defer unlock()

	sess, ok := f.store.Get(key)
	if !ok {
		return f.reply(c, msgNoSession)
	}
	return f.reply(c, statusText(stepName(sess.State), sess.Data, f.opts.Mode, f.opts.QueueLimit))
}

// Help lists the commands.
func (f *Flow) Help(c tele.Context) error {
	return f.reply(c, msgHelp)
}

// Stats reports active conversations and relay totals to the admin.
func (f *Flow) Stats(c tele.Context) error {
	var relayed, failed, floods int64
	if f.opts.Stats != nil {
		relayed, failed, floods = f.opts.Stats.Totals()
	}
	return f.reply(c, statsText(f.Sessions(), relayed, failed, floods))
}

// RejectAdmin answers non-admins invoking admin commands.
func (f *Flow) RejectAdmin(c tele.Context) error {
	return f.reply(c, msgAdminOnly)
}
