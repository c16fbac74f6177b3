package middleware

import (
	tele "gopkg.in/telebot.v4"
)

const countersKey = "reply_counters"

// replyCounters tracks what a handler sent back for the handler.handled line.
type replyCounters struct {
	messages int
	keyboard bool
}

// countingContext wraps tele.Context so every successful Send, Reply or Edit
// is counted.
type countingContext struct {
	tele.Context
	counters *replyCounters
}

func (cc countingContext) count(opts []interface{}, err error) error {
	if err != nil {
		return err
	}
	cc.counters.messages++
	if hasKeyboard(opts) {
		cc.counters.keyboard = true
	}
	return nil
}

// Send implements tele.Context.
func (cc countingContext) Send(what interface{}, opts ...interface{}) error {
	return cc.count(opts, cc.Context.Send(what, opts...))
}

// Reply implements tele.Context.
func (cc countingContext) Reply(what interface{}, opts ...interface{}) error {
	return cc.count(opts, cc.Context.Reply(what, opts...))
}

// Edit implements tele.Context.
func (cc countingContext) Edit(what interface{}, opts ...interface{}) error {
	return cc.count(opts, cc.Context.Edit(what, opts...))
}

func hasKeyboard(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

// MessageMetricsMiddleware counts the replies sent while handling an update.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		counters := &replyCounters{}
		c.Set(countersKey, counters)
		return next(countingContext{Context: c, counters: counters})
	}
}

// UpdateObserver returns a middleware that reports the kind of every update
// to observe before passing it on. A nil observe is a no-op.
func UpdateObserver(observe func(kind string)) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		if observe == nil {
			return next
		}
		return func(c tele.Context) error {
			observe(UpdateKind(c.Update()))
			return next(c)
		}
	}
}

// GetCounters returns the number of replies sent so far and whether any of
// them carried a keyboard.
func GetCounters(c tele.Context) (int, bool) {
	counters, ok := c.Get(countersKey).(*replyCounters)
	if !ok || counters == nil {
		return 0, false
	}
	return counters.messages, counters.keyboard
}
