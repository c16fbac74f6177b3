package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/captionrelay/core/config"
	"github.com/m3rciful/captionrelay/core/logger"
	coretelegram "github.com/m3rciful/captionrelay/core/telegram"
)

// ConfigCarrier exposes access to the embedded core configuration.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp is the minimal interface required to run a Telegram bot.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options describe how to load configuration, bootstrap the app, and run the bot.
type Options struct {
	// ConfigPath is an explicitly requested config file; it must exist.
	ConfigPath        string
	ConfigEnvVar      string
	DefaultConfigPath string

	// LoadConfig receives optional=true when the path is the default and may be absent.
	LoadConfig func(path string, optional bool) (ConfigCarrier, error)
	Bootstrap  func(cfg ConfigCarrier) (TelegramApp, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
	// Context overrides the signal-bound context, mainly for tests.
	Context context.Context
}

// ResolveConfigPath picks the config file: explicit flag, then the
// environment variable, then the default. optional is true only for the default.
func ResolveConfigPath(explicit, envVar, fallback string) (path string, optional bool) {
	if explicit != "" {
		return explicit, false
	}
	if envVar == "" {
		envVar = "CONFIG_PATH"
	}
	if p := os.Getenv(envVar); p != "" {
		return p, false
	}
	return fallback, true
}

// Run loads configuration, bootstraps the app and runs the bot until SIGINT
// or SIGTERM. Buffered logs are flushed on every return path after bootstrap
// has started.
func Run(opts Options) error {
	if opts.LoadConfig == nil {
		return errors.New("cmd: LoadConfig is required")
	}
	if opts.Bootstrap == nil {
		return errors.New("cmd: Bootstrap is required")
	}

	path, optional := ResolveConfigPath(opts.ConfigPath, opts.ConfigEnvVar, opts.DefaultConfigPath)
	if path == "" && !optional {
		return errors.New("cmd: config path not provided")
	}
	log.Printf("loading config: %s", path)
	cfg, err := opts.LoadConfig(path, optional)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}
	if cfg == nil || cfg.CoreConfig() == nil {
		return errors.New("cmd: loaded config is missing core configuration")
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	app, err := opts.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	runOpts, err := app.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options build failed: %w", err)
	}
	withLifecycleLogs(&runOpts, time.Now())

	base := opts.Context
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}
	return run(ctx, runOpts)
}

// withLifecycleLogs logs "ready" after the app's OnStart succeeds and
// "shutdown" before its OnStop runs.
func withLifecycleLogs(opts *coretelegram.RunOptions, startedAt time.Time) {
	onStart, onStop := opts.OnStart, opts.OnStop

	opts.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if onStart != nil {
			if err := onStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.Info(ctx, "app", "ready",
			slog.String("status", "ok"),
			slog.Duration("startup", time.Since(startedAt)),
		)
		return nil
	}
	opts.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.Info(ctx, "app", "shutdown", slog.String("status", "ok"))
		if onStop == nil {
			return nil
		}
		return onStop(ctx, rt)
	}
}
