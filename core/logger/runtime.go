package logger

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

type ctxKey int

const (
	keyMeta ctxKey = iota
	keyLogger
)

// meta carries the correlation fields copied into every log line of an update.
type meta struct {
	rid      string
	updateID int
	userID   int64
	chatID   int64
	handler  string
	batchID  string
}

func metaFrom(ctx context.Context) meta {
	if ctx == nil {
		return meta{}
	}
	m, _ := ctx.Value(keyMeta).(meta)
	return m
}

func withMeta(ctx context.Context, edit func(*meta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := metaFrom(ctx)
	edit(&m)
	return context.WithValue(ctx, keyMeta, m)
}

// WithLogger stores log in ctx; FromContext returns it.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, keyLogger, log)
}

// FromContext returns the logger stored by WithLogger, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(keyLogger).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return L
}

// WithRID sets the correlation id of the current update.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *meta) { m.rid = rid })
}

// RIDFrom returns the correlation id set by WithRID.
func RIDFrom(ctx context.Context) string { return metaFrom(ctx).rid }

// WithUpdateMeta records the update, user and chat ids.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withMeta(ctx, func(m *meta) {
		m.updateID = updateID
		m.userID = userID
		m.chatID = chatID
	})
}

// WithHandler names the route handling the update. Empty names are ignored.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withMeta(ctx, func(m *meta) { m.handler = handler })
}

// HandlerFrom returns the handler name set by WithHandler.
func HandlerFrom(ctx context.Context) string { return metaFrom(ctx).handler }

// WithBatch tags the context with the relay batch being committed.
func WithBatch(ctx context.Context, batchID string) context.Context {
	if batchID == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withMeta(ctx, func(m *meta) { m.batchID = batchID })
}

// BatchIDFrom returns the relay batch id set by WithBatch.
func BatchIDFrom(ctx context.Context) string { return metaFrom(ctx).batchID }

// UserIDFrom returns the Telegram user id of the update.
func UserIDFrom(ctx context.Context) int64 { return metaFrom(ctx).userID }

// ChatIDFrom returns the chat id of the update.
func ChatIDFrom(ctx context.Context) int64 { return metaFrom(ctx).chatID }

// UpdateIDFrom returns the update id.
func UpdateIDFrom(ctx context.Context) int { return metaFrom(ctx).updateID }

// Sanitize drops control and format runes except tab and newline.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit sanitizes s and keeps at most max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	cleaned := Sanitize(s)
	n := 0
	for i := range cleaned {
		if n == max {
			return cleaned[:i]
		}
		n++
	}
	return cleaned
}

// BuildRID formats a correlation id as updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return strconv.Itoa(updateID) + ":" + strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(userID, 10)
}

// CompactRID rewrites a BuildRID value with base36 segments joined by dots.
// Any other input is returned trimmed but otherwise unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}
