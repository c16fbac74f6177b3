package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/captionrelay/core/logger"
	tghelpers "github.com/m3rciful/captionrelay/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval  time.Duration
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

// RateLimitMiddleware returns a middleware that enforces a minimum interval
// between updates from the same sender (or channel, for channel posts).
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	var (
		lastSeen   = make(map[int64]time.Time)
		lastSeenMu sync.Mutex
	)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			id := actorID(c)
			if id == 0 || opts.Interval <= 0 {
				return next(c)
			}

			kind := UpdateKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}

			now := time.Now()

			lastSeenMu.Lock()
			if last, ok := lastSeen[id]; ok && now.Sub(last) < opts.Interval {
				lastSeenMu.Unlock()
				logger.Warn(tghelpers.BuildContext(c), "tg", "rate_limit",
					slog.String("status", "skip"),
					slog.String("kind", kind),
					slog.Int64("actor_id", id),
				)
				if opts.OnLimited != nil {
					_ = opts.OnLimited(c)
				}
				return nil
			}

			lastSeen[id] = now
			lastSeenMu.Unlock()
			return next(c)
		}
	}
}
