// Package app wires configuration, the relay engine and the conversation
// flow into a runnable Telegram bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/captionrelay/core/bootstrap"
	corecmd "github.com/m3rciful/captionrelay/core/cmd"
	coreconfig "github.com/m3rciful/captionrelay/core/config"
	"github.com/m3rciful/captionrelay/core/logger"
	tg "github.com/m3rciful/captionrelay/core/telegram"
	"github.com/m3rciful/captionrelay/core/telegram/router"
	tgsender "github.com/m3rciful/captionrelay/core/telegram/sender"
	"github.com/m3rciful/captionrelay/core/telegram/state"
	"github.com/m3rciful/captionrelay/internal/conversation"
	"github.com/m3rciful/captionrelay/internal/journal"
	"github.com/m3rciful/captionrelay/internal/metrics"
	"github.com/m3rciful/captionrelay/internal/relay"

	tele "gopkg.in/telebot.v4"
)

// Deps are the externally built pieces an App runs on.
type Deps struct {
	Bot *tele.Bot
	// DB enables the relay journal when non-nil.
	DB *sqlx.DB
	// Close releases DB and anything else bootstrap acquired.
	Close func() error
}

// App is the caption relay bot.
type App struct {
	cfg  *coreconfig.Config
	deps Deps

	store    conversation.Store
	metrics  *metrics.Metrics
	server   *metrics.Server
	engine   *relay.Engine
	journal  *journal.Journal
	flow     *conversation.Flow
	registry *tg.Registry
	janitor  *state.Janitor
}

var _ corecmd.TelegramApp = (*App)(nil)

// Bootstrap initializes logging and the optional database, builds the bot and
// wires the app. It matches corecmd.Options.Bootstrap.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg := carrier.CoreConfig()
	infra, err := bootstrap.Run(bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}

	bot, err := tg.NewBot(cfg)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}

	a, err := New(cfg, Deps{Bot: bot, DB: infra.DB, Close: infra.Close})
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	return a, nil
}

// New wires an App from cfg and deps.
func New(cfg *coreconfig.Config, deps Deps) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if deps.Bot == nil {
		return nil, errors.New("app: nil bot")
	}

	a := &App{
		cfg:      cfg,
		deps:     deps,
		store:    conversation.NewStore(),
		registry: tg.NewRegistry(),
	}
	a.metrics = metrics.New(a.store.Len)
	if cfg.Metrics.Listen != "" {
		a.server = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, a.metrics)
	}

	engineOpts := relay.Options{
		FloodBuffer:     cfg.Relay.FloodBuffer(),
		MaxFloodRetries: cfg.Relay.MaxFloodRetries,
		MaxFloodWait:    cfg.Relay.MaxFloodWaitDuration(),
		DeleteSource:    cfg.Relay.DeleteSource,
		Deleter:         deps.Bot,
		Observer:        a.metrics,
	}
	if deps.DB != nil {
		a.journal = journal.New(deps.DB, journal.Options{})
		engineOpts.Journal = a.journal
	}
	a.engine = relay.NewEngine(deps.Bot, engineOpts)

	a.flow = conversation.New(a.engine, conversation.Options{
		Mode:       cfg.Relay.Mode,
		QueueLimit: cfg.Relay.QueueLimit,
		Store:      a.store,
		Resolver:   deps.Bot,
		Stats:      a.metrics,
	})
	if err := a.flow.Register(a.registry); err != nil {
		return nil, fmt.Errorf("app: register flow: %w", err)
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "app"),
		slog.String("mode", a.flow.Mode()),
		slog.Bool("journal", deps.DB != nil),
		slog.Bool("metrics", a.server != nil),
	)
	return a, nil
}

// Metrics returns the app's collectors.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Registry returns the command and callback registry.
func (a *App) Registry() *tg.Registry { return a.registry }

// TelegramRunOptions implements corecmd.TelegramApp.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	cfg := a.cfg

	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID:       cfg.Telegram.AdminID,
		OnAdminReject: a.flow.RejectAdmin,
	})
	routes = append(routes, router.MessageRoutes(a.flow, a.registry, router.MessageOptions{Fallbacks: a.flow})...)
	routes = append(routes,
		router.CallbackRoute(a.registry, router.CallbackOptionsFrom(a.flow)),
		router.ChannelRoute(a.registry),
	)

	return tg.RunOptions{
		Config:            cfg,
		Registry:          a.registry,
		Bot:               a.deps.Bot,
		DispatcherOptions: a.dispatcherOptions(),
		Middlewares: tg.DefaultMiddlewares(cfg, tg.MiddlewareHooks{
			OnLimited: onLimited,
			OnUpdate:  a.metrics.ObserveUpdate,
		}),
		Routes:  routes,
		OnStart: a.start,
		OnStop:  a.stop,
	}, nil
}

// dispatcherOptions keeps replies ordered with a single worker unless
// configured otherwise.
func (a *App) dispatcherOptions() tgsender.Options {
	workers := a.cfg.Sender.Workers
	if workers <= 0 {
		workers = 1
	}
	return tgsender.Options{
		QueueSize:   a.cfg.Sender.QueueSize,
		Workers:     workers,
		MaxRetries:  a.cfg.Sender.MaxRetries,
		FloodBuffer: a.cfg.Relay.FloodBuffer(),
		OnResult:    a.metrics.ReplySent,
	}
}

func (a *App) start(ctx context.Context, _ tg.Runtime) error {
	a.flow.Bind(ctx)

	if idle := a.cfg.Session.IdleTimeoutDuration(); idle > 0 {
		j, err := state.StartJanitor(a.store, a.cfg.Session.SweepIntervalDuration(), idle,
			state.OnEvict(a.metrics.SessionsEvicted))
		if err != nil {
			return fmt.Errorf("app: start janitor: %w", err)
		}
		a.janitor = j
	}

	if a.server != nil {
		if err := a.server.Start(ctx); err != nil {
			a.janitor.Stop()
			return err
		}
		a.server.SetReady(true)
	}
	return nil
}

func (a *App) stop(ctx context.Context, _ tg.Runtime) error {
	a.janitor.Stop()

	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.journal != nil {
		a.journal.Close()
	}
	if a.deps.Close != nil {
		if err := a.deps.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close infrastructure: %w", err))
		}
	}
	return errors.Join(errs...)
}

func onLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Too fast, try again in a moment."})
	}
	return nil
}
