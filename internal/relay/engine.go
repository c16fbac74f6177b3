package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/m3rciful/captionrelay/core/logger"
	"github.com/m3rciful/captionrelay/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

// DefaultFloodBuffer is added to every server-mandated flood wait.
const DefaultFloodBuffer = time.Second

// Sender submits media to a chat. *tele.Bot satisfies it.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Deleter removes a message. *tele.Bot satisfies it.
type Deleter interface {
	Delete(msg tele.Editable) error
}

// Observer receives relay outcomes, typically for metrics.
type Observer interface {
	RelayFinished(kind Kind, outcome Outcome, attempts int, took time.Duration)
	FloodWaited(wait time.Duration)
	BatchFinished(r Report)
}

// Journal persists relay outcomes. Record is called inline after each item,
// so implementations should not wait on storage.
type Journal interface {
	Record(ctx context.Context, e Entry) error
}

// Entry is a journal record for one relayed item.
type Entry struct {
	BatchID     string
	UserID      int64
	Destination Destination
	Kind        Kind
	FileID      string
	Caption     string
	Outcome     Outcome
	Attempts    int
	Err         string
}

// Options tune an Engine. The zero value waits forever on flood control.
type Options struct {
	// FloodBuffer is added to the mandated wait; defaults to DefaultFloodBuffer.
	FloodBuffer time.Duration
	// MaxFloodRetries bounds resubmissions after flood errors; 0 is unbounded.
	MaxFloodRetries int
	// MaxFloodWait rejects a single mandated wait longer than this; 0 is unbounded.
	MaxFloodWait time.Duration
	// DeleteSource removes the inbound message after a successful relay.
	DeleteSource bool

	Deleter  Deleter
	Observer Observer
	Journal  Journal

	// Wait blocks for d or until ctx is done; defaults to a timer.
	Wait func(ctx context.Context, d time.Duration) error
}

// Engine relays media items to a destination, rewriting captions and
// riding out flood control.
type Engine struct {
	sender Sender
	opts   Options
}

// NewEngine constructs an engine sending through s.
func NewEngine(s Sender, opts Options) *Engine {
	if opts.FloodBuffer <= 0 {
		opts.FloodBuffer = DefaultFloodBuffer
	}
	if opts.Wait == nil {
		opts.Wait = sleep
	}
	if opts.MaxFloodRetries < 0 {
		opts.MaxFloodRetries = 0
	}
	return &Engine{sender: s, opts: opts}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Relay sends one item to dest with rule applied to its caption.
func (e *Engine) Relay(ctx context.Context, item Item, rule Rule, dest Destination) Result {
	start := time.Now()
	caption := rule.Apply(item.Caption)

	res := e.submit(ctx, item, caption, dest)
	res.Caption = caption
	took := time.Since(start)

	e.report(ctx, item, dest, res, took)
	if res.Outcome == Success {
		e.deleteSource(ctx, item)
	}
	return res
}

func (e *Engine) submit(ctx context.Context, item Item, caption string, dest Destination) Result {
	what, err := item.sendable(caption)
	if err != nil {
		return fatal(err, 0)
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fatal(err, attempt-1)
		}

		_, err := e.sender.Send(dest, what)
		if err == nil {
			return Result{Outcome: Success, Attempts: attempt}
		}

		mandated, flooded := netutil.FloodWait(err)
		if !flooded {
			return fatal(&PlatformError{Err: err}, attempt)
		}

		wait := mandated + e.opts.FloodBuffer
		if e.opts.MaxFloodWait > 0 && mandated > e.opts.MaxFloodWait {
			return Result{Outcome: RetryableFailure, Wait: wait, Err: ErrFloodLimit, Attempts: attempt}
		}
		if e.opts.MaxFloodRetries > 0 && attempt > e.opts.MaxFloodRetries {
			return Result{Outcome: RetryableFailure, Wait: wait, Err: ErrFloodLimit, Attempts: attempt}
		}

		logger.Warn(ctx, "relay", "relay.flood_wait",
			slog.String("status", "retry"),
			slog.String("destination", dest.String()),
			slog.String("kind", string(item.Kind)),
			slog.Int("attempt", attempt),
			slog.Int("retry_after_s", int(mandated/time.Second)),
			slog.Duration("wait", wait),
		)
		if e.opts.Observer != nil {
			e.opts.Observer.FloodWaited(wait)
		}
		if err := e.opts.Wait(ctx, wait); err != nil {
			return Result{Outcome: RetryableFailure, Wait: wait, Err: err, Attempts: attempt}
		}
	}
}

func fatal(err error, attempts int) Result {
	return Result{Outcome: FatalFailure, Err: err, Attempts: attempts}
}

func (e *Engine) report(ctx context.Context, item Item, dest Destination, res Result, took time.Duration) {
	attrs := []slog.Attr{
		slog.String("status", res.Outcome.status()),
		slog.String("outcome", res.Outcome.String()),
		slog.String("destination", dest.String()),
		slog.String("kind", string(item.Kind)),
		slog.Int("attempts", res.Attempts),
		slog.Int64("duration_ms", logger.RoundMS(took).Milliseconds()),
	}
	if res.Err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(res.Err.Error(), 256)))
		if res.Outcome == RetryableFailure {
			attrs = append(attrs, slog.Bool("retryable", true), slog.Duration("wait", res.Wait))
		}
	}
	level := slog.LevelInfo
	if res.Outcome != Success {
		level = slog.LevelWarn
	}
	logger.LogEvent(ctx, logger.Relay, level, "relay.item", attrs...)

	if e.opts.Observer != nil {
		e.opts.Observer.RelayFinished(item.Kind, res.Outcome, res.Attempts, took)
	}
	if e.opts.Journal != nil {
		entry := Entry{
			BatchID:     logger.BatchIDFrom(ctx),
			UserID:      logger.UserIDFrom(ctx),
			Destination: dest,
			Kind:        item.Kind,
			FileID:      item.FileID,
			Caption:     res.Caption,
			Outcome:     res.Outcome,
			Attempts:    res.Attempts,
		}
		if res.Err != nil {
			entry.Err = res.Err.Error()
		}
		if err := e.opts.Journal.Record(context.WithoutCancel(ctx), entry); err != nil {
			logger.Warn(ctx, "relay", "relay.journal_failed",
				slog.String("status", "fail"),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		}
	}
}

func (e *Engine) deleteSource(ctx context.Context, item Item) {
	if !e.opts.DeleteSource || e.opts.Deleter == nil || item.SourceMessageID == 0 || item.SourceChat == 0 {
		return
	}
	msg := &tele.StoredMessage{
		MessageID: strconv.Itoa(item.SourceMessageID),
		ChatID:    item.SourceChat,
	}
	if err := e.opts.Deleter.Delete(msg); err != nil {
		logger.Warn(ctx, "relay", "relay.delete_source",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
}

// Result is the outcome of relaying one item.
type Result struct {
	Outcome Outcome
	// Wait is the last wait that would have been needed, for RetryableFailure.
	Wait time.Duration
	Err  error
	// Attempts counts submissions, including the successful one.
	Attempts int
	// Caption is the caption after substitution.
	Caption string
}

// Reason is a short human-readable failure description.
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	var pe *PlatformError
	if errors.As(r.Err, &pe) {
		return pe.Reason()
	}
	if errors.Is(r.Err, ErrFloodLimit) {
		return fmt.Sprintf("rate limited, retry in %s", r.Wait.Round(time.Second))
	}
	return r.Err.Error()
}

// Outcome classifies a relay attempt.
type Outcome int

const (
	Success Outcome = iota
	RetryableFailure
	FatalFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case RetryableFailure:
		return "retryable_failure"
	case FatalFailure:
		return "fatal_failure"
	}
	return "unknown"
}

func (o Outcome) status() string {
	switch o {
	case Success:
		return "ok"
	case RetryableFailure:
		return "rate_limited"
	}
	return "fail"
}
