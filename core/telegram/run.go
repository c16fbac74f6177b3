package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/captionrelay/core/config"
	"github.com/m3rciful/captionrelay/core/logger"
	tghelpers "github.com/m3rciful/captionrelay/core/telegram/helpers"
	tgsender "github.com/m3rciful/captionrelay/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry
	// Bot is an already constructed bot (see NewBot). When nil one is built from Config.
	Bot *tele.Bot

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	DisableWebhookCleanup   bool
	DisableHelperDispatcher bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// NewBot builds a bot with the configured poller and tuned HTTP client.
// It does not contact the API, so handlers can be wired before RunTelegram.
func NewBot(cfg *coreconfig.Config) (*tele.Bot, error) {
	if cfg == nil {
		return nil, errors.New("telegram: nil config provided")
	}
	settings := tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: BuildPoller(pollerOptions(cfg)),
		Client: BuildHTTPClient(time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second),
		OnError: func(err error, c tele.Context) {
			ctx := logger.Background()
			if c != nil {
				ctx = tghelpers.BuildContext(c)
			}
			logger.Error(ctx, "tg", "handler.error",
				slog.String("status", "fail"),
				slog.String("err", logger.SanitizeLimit(logger.RedactToken(err.Error()), 256)),
			)
		},
	}
	bot, err := tele.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return bot, nil
}

func pollerOptions(cfg *coreconfig.Config) PollerOptions {
	return PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		AllowedUpdates:         allowedUpdates,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
	}
}

// allowedUpdates lists the update types the bot subscribes to.
var allowedUpdates = []string{"message", "channel_post", "callback_query"}

// RunTelegram installs middlewares, routes and the command list on the bot,
// runs OnStart, then serves updates until ctx is done or the poller stops.
// OnStop runs with a fresh 10s budget. Cancellation is not an error.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return errors.New("telegram: nil config provided")
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	built := time.Now()
	bot := opts.Bot
	if bot == nil {
		var err error
		if bot, err = NewBot(opts.Config); err != nil {
			return err
		}
	}
	logMode(ctx, bot, opts, time.Since(built))

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	if !opts.DisableHelperDispatcher {
		tghelpers.SetDispatcher(dispatcher)
	}
	release := func() {
		dispatcher.Close()
		if !opts.DisableHelperDispatcher {
			tghelpers.SetDispatcher(nil)
		}
	}

	install(bot, reg, opts)
	rt := Runtime{Bot: bot, Dispatcher: dispatcher, Registry: reg}

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			release()
			return err
		}
	}

	runErr := serve(ctx, bot)

	var stopErr error
	if opts.OnStop != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		stopErr = opts.OnStop(stopCtx, rt)
		cancel()
	}
	release()

	if stopErr != nil {
		return stopErr
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func install(bot *tele.Bot, reg *Registry, opts RunOptions) {
	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint != nil && route.Handler != nil {
			bot.Handle(route.Endpoint, route.Handler)
		}
	}
	SetupCommands(bot, reg)
}

// serve blocks in bot.Start until ctx is done or the poller returns.
func serve(ctx context.Context, bot *tele.Bot) error {
	done := make(chan struct{})
	go func() {
		bot.Start()
		close(done)
	}()

	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
		return ctx.Err()
	case <-done:
		return nil
	}
}

// logMode reports the poller in use. In long-poll mode a webhook left over
// from an earlier deployment is removed, otherwise getUpdates is refused.
func logMode(ctx context.Context, bot *tele.Bot, opts RunOptions, took time.Duration) {
	if wh, ok := bot.Poller.(*tele.Webhook); ok {
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "webhook mode",
			slog.String("event", "mode"),
			slog.String("mode", "webhook"),
			slog.String("listen", wh.Listen),
			slog.String("public_url", wh.Endpoint.PublicURL),
			slog.Duration("duration", took),
		)
		return
	}

	timeout := opts.Config.Telegram.LongPollTimeoutSeconds
	if timeout <= 0 {
		timeout = 10
	}
	logger.TG.LogAttrs(ctx, slog.LevelInfo, "polling mode",
		slog.String("event", "mode"),
		slog.String("mode", "polling"),
		slog.Int("timeout_seconds", timeout),
		slog.Duration("duration", took),
	)

	if opts.DisableWebhookCleanup || !strings.EqualFold(opts.Config.Telegram.RunMode, coreconfig.RunModeLongpoll) {
		return
	}
	if err := bot.RemoveWebhook(false); err != nil {
		logger.TG.LogAttrs(ctx, slog.LevelWarn, "webhook cleanup failed",
			slog.String("event", "delete_webhook"),
			slog.String("status", "fail"),
			slog.String("err", logger.RedactToken(err.Error())),
		)
		return
	}
	logger.TG.LogAttrs(ctx, slog.LevelInfo, "webhook deleted",
		slog.String("event", "delete_webhook"),
		slog.String("status", "ok"),
	)
}
