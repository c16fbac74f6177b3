package router

import (
	"errors"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/captionrelay/core/logger"
	tghelpers "github.com/m3rciful/captionrelay/core/telegram/helpers"
	"github.com/m3rciful/captionrelay/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// handled runs fn under the given handler name and logs one handler.handled line.
func handled(c tele.Context, name string, fn tele.HandlerFunc, extras ...slog.Attr) error {
	start := time.Now()
	tghelpers.WithHandler(c, name)
	err := fn(c)
	summary{name: name, start: start, err: err}.log(c, extras...)
	return err
}

// skipped logs an update that no handler accepted.
func skipped(c tele.Context, name string) {
	summary{name: name, start: time.Now(), status: "skip"}.log(c)
}

type summary struct {
	name   string
	start  time.Time
	status string
	err    error
}

func (s summary) log(c tele.Context, extras ...slog.Attr) {
	ctx := tghelpers.WithHandler(c, s.name)
	msgs, kb := middleware.GetCounters(c)

	outcome := "ok"
	if s.err != nil {
		outcome = "fail"
	}
	status := s.status
	if status == "" {
		status = outcome
	}

	attrs := append([]slog.Attr{
		slog.String("status", status),
		slog.String("handler", s.name),
		slog.String("outcome", outcome),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", time.Since(s.start)),
	}, extras...)
	if s.err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(logger.RedactToken(s.err.Error()), 256)),
			slog.String("err_code", errorCode(s.err)),
		)
	}
	logger.LogEvent(ctx, logger.Component("tg"), slog.LevelInfo, "handler.handled", attrs...)
}

// handlerName turns a command or callback key into a log-friendly name:
// "/Upload Now" becomes "upload_now".
func handlerName(key string) string {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(key, " ", "_"))
}

// errorCode names the failure: FLOOD, API_<code> or the error's type name.
func errorCode(err error) string {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return "FLOOD"
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return "API_" + strconv.Itoa(apiErr.Code)
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(t.Name())
}
