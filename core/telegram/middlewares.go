package telegram

import (
	"strings"
	"time"

	coreconfig "github.com/m3rciful/captionrelay/core/config"
	"github.com/m3rciful/captionrelay/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// MiddlewareHooks lets callers observe the shared middleware chain.
type MiddlewareHooks struct {
	// OnLimited runs when an update is dropped by the rate limiter.
	OnLimited tele.HandlerFunc
	// OnUpdate receives the kind of every inbound update.
	OnUpdate func(kind string)
}

// DefaultMiddlewares builds the shared middleware chain for bots.
func DefaultMiddlewares(cfg *coreconfig.Config, hooks MiddlewareHooks) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
	}

	if hooks.OnUpdate != nil {
		mws = append(mws, Middleware{Name: "observe", Use: middleware.UpdateObserver(hooks.OnUpdate)})
	}

	if cfg != nil {
		interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond
		if interval > 0 {
			ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
			for _, t := range cfg.RateLimit.ExcludeUpdates {
				ex[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
			}
			mws = append(mws, Middleware{
				Name: "rate_limit",
				Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
					Interval:  interval,
					Exclude:   ex,
					OnLimited: hooks.OnLimited,
				}),
			})
		}
	}

	mws = append(mws,
		Middleware{Name: "logger", Use: middleware.LoggerMiddleware},
		Middleware{Name: "metrics", Use: middleware.MessageMetricsMiddleware},
	)

	return mws
}
