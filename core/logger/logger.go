package logger

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/captionrelay/core/buildinfo"
	coreconfig "github.com/m3rciful/captionrelay/core/config"
)

var (
	initOnce   sync.Once
	shutdownMu sync.Mutex
	shutdowned bool

	logWriter  *asyncWriter
	logClosers []io.Closer

	levelVar slog.LevelVar

	debugSampler  = newRatioSampler(1, 50)
	traceOverride bool

	// L is the base logger; component loggers below are derived from it.
	L *slog.Logger

	// DB logs journal database events.
	DB *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
	// TWire logs Telegram wiring steps.
	TWire *slog.Logger
	// Relay logs caption relay submissions and flood waits.
	Relay *slog.Logger
)

func init() {
	// Until InitLogger runs, component loggers write through the slog default.
	L = slog.Default()
	wireComponents()
}

// InitLogger configures the global structured logger. Calls after the first
// are no-ops.
func InitLogger(cfg *coreconfig.Config) error {
	initOnce.Do(func() {
		set := settingsFrom(cfg)
		levelVar.Set(set.level)
		debugSampler.Set(set.sampleNum, set.sampleDen)
		traceOverride = envFlag("TRACE") || envFlag("LOG_TRACE")

		outputs, closers := openOutputs(set.dir, set.file)
		logClosers = closers
		logWriter = newAsyncWriter(outputs, 64*1024)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   logWriter,
			format:   set.format,
			keyOrder: set.keyOrder,
		}))
		slog.SetDefault(L)

		wireComponents()
		logStartup(cfg, set.profile)
	})
	return nil
}

func wireComponents() {
	if L == nil {
		return
	}
	DB = L.With("component", "db")
	TG = L.With("component", "tg")
	MIG = L.With("component", "db.migrate")
	TWire = L.With("component", "tg.wire")
	Relay = L.With("component", "relay")
}

func logStartup(cfg *coreconfig.Config, profile string) {
	if L == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("component", "app"),
		slog.String("event", "startup"),
		slog.String("go_version", runtime.Version()),
		slog.String("build_version", buildinfo.Version),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
	}
	if cfg != nil {
		attrs = append(attrs,
			slog.String("cfg_profile", profile),
			slog.String("mode", cfg.Telegram.RunMode),
			slog.String("relay_mode", cfg.Relay.Mode),
		)
	}
	L.LogAttrs(context.Background(), slog.LevelInfo, "startup", attrs...)
}

// Shutdown flushes buffered log output and closes opened sinks.
func Shutdown() error {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if shutdowned {
		return nil
	}
	shutdowned = true

	var errs []error
	if logWriter != nil {
		if err := logWriter.Flush(); err != nil {
			errs = append(errs, err)
		}
		if err := logWriter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range logClosers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// settings is the resolved logging section.
type settings struct {
	format    logFormat
	keyOrder  []string
	level     slog.Level
	profile   string
	sampleNum int
	sampleDen int
	dir       string
	file      string
}

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func settingsFrom(cfg *coreconfig.Config) settings {
	set := settings{
		format:    formatJSON,
		keyOrder:  append([]string(nil), defaultKeyOrder...),
		level:     slog.LevelInfo,
		sampleNum: 1,
		sampleDen: 50,
	}
	if cfg == nil {
		return set
	}
	lc := cfg.Logging

	set.profile = strings.ToLower(strings.TrimSpace(lc.Profile))
	if set.profile == "" {
		set.profile = "prod"
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		set.format = formatKV
	case "json":
	default:
		if set.profile == "debug" || set.profile == "dev" {
			set.format = formatKV
		}
	}
	if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(lc.Level))]; ok {
		set.level = lvl
	}
	if order := splitKeys(lc.KeysOrder); len(order) > 0 {
		set.keyOrder = order
	}
	if spec := strings.TrimSpace(lc.DebugSample); spec != "" {
		num, den := parseRatioSpec(spec)
		switch {
		case num == 0 && den == 0:
			set.sampleNum, set.sampleDen = 0, 0
		case num > 0 && den > 0:
			set.sampleNum, set.sampleDen = num, den
		}
	}
	set.dir = strings.TrimSpace(lc.Dir)
	set.file = strings.TrimSpace(lc.BotFile)
	return set
}

func splitKeys(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return nil
	}
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// openOutputs always writes to stdout; a file sink that cannot be opened is
// reported on the standard logger and skipped.
func openOutputs(dir, file string) ([]io.Writer, []io.Closer) {
	writers := []io.Writer{os.Stdout}
	if dir == "" || file == "" {
		return writers, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("logger: create log dir %s: %v", dir, err)
		return writers, nil
	}
	path := filepath.Join(dir, file)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("logger: open log file %s: %v", path, err)
		return writers, nil
	}
	return append(writers, f), []io.Closer{f}
}

// Background is the root context for update handling.
func Background() context.Context {
	return context.Background()
}

// LogEvent writes an event line to logg, the context logger or L, in that order.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns L scoped to name; an empty name returns L itself.
func Component(name string) *slog.Logger {
	name = strings.TrimSpace(name)
	if L == nil || name == "" {
		return L
	}
	return L.With("component", name)
}

// Event logs event at level under component.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), level, event, attrs...)
}

// Debug logs at debug level.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs at info level.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs at warn level.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs at error level.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// ShouldSampleDebug reports whether debug-level details should be logged for high-volume events.
func ShouldSampleDebug() bool {
	if traceOverride {
		return true
	}
	return debugSampler.Allow()
}
