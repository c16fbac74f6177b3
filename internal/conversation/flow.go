// Package conversation implements the guided setup that collects a caption
// rule and target channel, then relays or queues the media a user sends.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/m3rciful/captionrelay/core/logger"
	tg "github.com/m3rciful/captionrelay/core/telegram"
	"github.com/m3rciful/captionrelay/core/telegram/commands"
	tghelpers "github.com/m3rciful/captionrelay/core/telegram/helpers"
	"github.com/m3rciful/captionrelay/core/telegram/keyboard"
	"github.com/m3rciful/captionrelay/core/telegram/state"
	"github.com/m3rciful/captionrelay/core/telegram/ui"
	"github.com/m3rciful/captionrelay/internal/relay"

	tele "gopkg.in/telebot.v4"
)

// Callback keys of the batch queue keyboard.
const (
	CallbackUpload = "relay_upload"
	CallbackClear  = "relay_clear"
)

// Relayer is the engine surface the flow drives.
type Relayer interface {
	Relay(ctx context.Context, item relay.Item, rule relay.Rule, dest relay.Destination) relay.Result
	RelayBatch(ctx context.Context, items []relay.Item, rule relay.Rule, dest relay.Destination, onItem relay.ProgressFunc) relay.Report
}

// ChatResolver looks up a chat by its @handle. *tele.Bot satisfies it.
type ChatResolver interface {
	ChatByUsername(name string) (*tele.Chat, error)
}

// StatsSource reports relay totals for /stats.
type StatsSource interface {
	Totals() (relayed, failed, floodWaits int64)
}

// Replier sends a reply into the chat of c. A nil markup sends plain text.
type Replier func(c tele.Context, text string, markup *tele.ReplyMarkup) error

// Options configure a Flow.
type Options struct {
	Mode       string
	QueueLimit int
	Store      Store
	Resolver   ChatResolver
	Stats      StatsSource

	Reply   Replier
	ReplyMD func(c tele.Context, text string) error
}

// Flow is the conversation state machine.
type Flow struct {
	engine Relayer
	opts   Options
	store  Store
	root   context.Context

	// lanes run one event at a time per chat; inbox orders the waiting ones.
	lanes *state.Lanes
	inbox *inbox
}

var _ ui.FallbackProvider = (*Flow)(nil)

// New builds a flow driving engine.
func New(engine Relayer, opts Options) *Flow {
	switch strings.ToLower(strings.TrimSpace(opts.Mode)) {
	case ModeInstant:
		opts.Mode = ModeInstant
	default:
		opts.Mode = ModeBatch
	}
	if opts.QueueLimit <= 0 {
		opts.QueueLimit = DefaultQueueLimit
	}
	if opts.Store == nil {
		opts.Store = NewStore()
	}
	if opts.Reply == nil {
		opts.Reply = func(c tele.Context, text string, markup *tele.ReplyMarkup) error {
			return tghelpers.SendWithMarkup(c, text, markup)
		}
	}
	if opts.ReplyMD == nil {
		opts.ReplyMD = func(c tele.Context, text string) error {
			return tghelpers.SendMD(c, text)
		}
	}
	return &Flow{
		engine: engine,
		opts:   opts,
		store:  opts.Store,
		root:   context.Background(),
		lanes:  state.NewLanes(),
		inbox:  newInbox(),
	}
}

// Bind ties relays to ctx so shutdown interrupts flood waits.
func (f *Flow) Bind(ctx context.Context) {
	if ctx != nil {
		f.root = ctx
	}
}

// Mode returns the effective relay mode.
func (f *Flow) Mode() string { return f.opts.Mode }

// Sessions returns the number of active conversations.
func (f *Flow) Sessions() int { return f.store.Len() }

// Register adds the flow's commands and callbacks to reg.
func (f *Flow) Register(reg *tg.Registry) error {
	cmds := []struct {
		name string
		cmd  commands.Command
	}{
		{"/start", commands.Command{Handler: f.Start, Description: "Set up caption rule and channel", Channel: true}},
		{"/id", commands.Command{Handler: f.ID, Description: "Show a chat or channel ID", Channel: true}},
		{"/upload", commands.Command{Handler: f.Upload, Description: "Post queued files in order"}},
		{"/done", commands.Command{Handler: f.Done, Description: "Finish the session"}},
		{"/status", commands.Command{Handler: f.Status, Description: "Show current setup"}},
		{"/cancel", commands.Command{Handler: f.Cancel, Description: "Discard current setup"}},
		{"/help", commands.Command{Handler: f.Help, Description: "How to use the bot"}},
		{"/stats", commands.Command{Handler: f.Stats, Description: "Relay statistics", AdminOnly: true, Hidden: true}},
	}
	for _, c := range cmds {
		if err := reg.RegisterCommand(c.name, c.cmd); err != nil {
			return err
		}
	}

	if err := reg.RegisterCallback(CallbackUpload, f.Upload); err != nil {
		return err
	}
	if err := reg.RegisterCallback(CallbackClear, f.ClearQueue); err != nil {
		return err
	}
	reg.SetCallbackNotFound(f.UnknownCallback())
	return nil
}

// InProgress reports whether key has an active conversation.
func (f *Flow) InProgress(key int64) bool {
	return f.store.InProgress(key)
}

// Handle dispatches an inbound message to the handler of the current step.
// Messages of one chat are handled one at a time in message id order.
func (f *Flow) Handle(c tele.Context) error {
	key := tghelpers.ChatKey(c)
	f.inbox.push(key, c)

	unlock := f.lanes.Lock(key)
	defer unlock()
	return f.drain(key, 0)
}

// drain handles the waiting messages of key with an id below before, or all
// of them when before is not positive. The caller holds the lane of key.
func (f *Flow) drain(key int64, before int) error {
	var errs []error
	for _, c := range f.inbox.take(key, before) {
		if err := f.dispatch(c, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// settle takes the lane of key for a command, first handling the messages
// sent before it. Button presses settle everything waiting.
func (f *Flow) settle(c tele.Context, key int64) (unlock func()) {
	unlock = f.lanes.Lock(key)
	before := 0
	if c.Update().Callback == nil {
		before = messageID(c)
	}
	if err := f.drain(key, before); err != nil {
		logger.Warn(tghelpers.BuildContext(c), "conversation", "event.settle",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
	return unlock
}

func (f *Flow) dispatch(c tele.Context, key int64) error {
	sess, ok := f.store.Get(key)
	if !ok {
		return nil
	}
	ev := EventFrom(c.Message())

	switch sess.State {
	case StateAwaitRemoveWord:
		return f.onRemoveWord(c, key, ev)
	case StateAwaitAddWord:
		return f.onAddWord(c, key, ev)
	case StateAwaitChannel:
		return f.onChannel(c, key, ev)
	case StateAwaitMedia:
		return f.onMedia(c, key, sess.Data, ev)
	}
	return nil
}

// UnknownText implements ui.FallbackProvider.
func (f *Flow) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		if !isPrivate(c.Chat()) {
			return nil
		}
		return f.reply(c, msgNoSession)
	}
}

// UnknownMedia implements ui.FallbackProvider.
func (f *Flow) UnknownMedia() tele.HandlerFunc {
	return func(c tele.Context) error {
		if !isPrivate(c.Chat()) {
			return nil
		}
		f.logGuidance(c, ErrNotConfigured)
		return f.reply(c, msgNoSession)
	}
}

// UnknownCallback implements ui.FallbackProvider.
func (f *Flow) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Respond(&tele.CallbackResponse{Text: msgNothingToDo})
	}
}

func (f *Flow) transition(c tele.Context, key int64, from, to state.State, mutate func(*Draft)) bool {
	ok := f.store.Update(key, func(s *state.Session[Draft]) {
		if mutate != nil {
			mutate(&s.Data)
		}
		s.State = to
	})
	if ok {
		logger.Info(tghelpers.BuildContext(c), "conversation", "state.transition",
			slog.String("status", "ok"),
			slog.String("from_state", string(from)),
			slog.String("to_state", string(to)),
		)
	}
	return ok
}

func (f *Flow) end(c tele.Context, key int64, reason string) {
	from := f.store.GetState(key)
	if !f.store.Clear(key) {
		return
	}
	logger.Info(tghelpers.BuildContext(c), "conversation", "state.transition",
		slog.String("status", "ok"),
		slog.String("from_state", string(from)),
		slog.String("to_state", string(state.StateIdle)),
		slog.String("cause", reason),
	)
}

func (f *Flow) logGuidance(c tele.Context, err error) {
	logger.Debug(tghelpers.BuildContext(c), "conversation", "guidance",
		slog.String("status", "skip"),
		slog.String("err", err.Error()),
	)
}

func (f *Flow) reply(c tele.Context, text string) error {
	return f.opts.Reply(c, text, nil)
}

func (f *Flow) replyMarkup(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	return f.opts.Reply(c, text, markup)
}

// relayContext derives a context for engine calls that carries the request
// metadata of c and ends with the bound root context.
func (f *Flow) relayContext(c tele.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(tghelpers.BuildContext(c))
	stop := context.AfterFunc(f.root, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func queueKeyboard() *tele.ReplyMarkup {
	return keyboard.Inline([]keyboard.Button{
		{Text: "⏫ Upload", Unique: CallbackUpload},
		{Text: "🗑 Clear", Unique: CallbackClear},
	})
}

func isPrivate(chat *tele.Chat) bool {
	return chat == nil || chat.Type == tele.ChatPrivate
}
