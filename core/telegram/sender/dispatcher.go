package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/captionrelay/core/logger"
	"github.com/m3rciful/captionrelay/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
	// FloodBuffer is added to the retry_after of a flood-control reply.
	FloodBuffer time.Duration
	// OnResult is called once per job with its final error (nil on success).
	OnResult func(action string, attempts int, err error)
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher executes outbound Telegram replies asynchronously with retries.
// Relay uploads do not go through it: they need the strict ordering and
// unbounded flood handling of the relay engine.
type Dispatcher struct {
	opts Options
	jobs chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	errs   atomic.Uint64
}

// NewDispatcher starts a dispatcher; zero options get defaults.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}
	if opts.FloodBuffer <= 0 {
		opts.FloodBuffer = time.Second
	}

	d := &Dispatcher{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				d.handle(j)
			}
		}()
	}
	return d
}

// Enqueue schedules run. run may be called more than once, so it must be
// safe to repeat.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of jobs that finally failed.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops accepting jobs and waits until the queued ones are done.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) handle(j job) {
	start := time.Now()
	logger.Debug(j.ctx, "tg.sender", "send.start", jobAttrs(j)...)

	attempts, err := d.attempt(j)
	elapsed := time.Since(start)
	if d.opts.OnResult != nil {
		d.opts.OnResult(j.action, attempts, err)
	}
	if err != nil {
		d.errs.Add(1)
		logger.Error(j.ctx, "tg.sender", "send.fail", append(jobAttrs(j),
			slog.String("status", "fail"),
			slog.String("err", sanitizeErrorMessage(err)),
			slog.String("err_code", classifyError(err)),
			slog.Int("attempts", attempts),
			slog.Duration("elapsed", elapsed),
		)...)
		return
	}

	level := slog.LevelDebug
	if attempts > 1 {
		level = slog.LevelInfo
	}
	logger.Event(j.ctx, "tg.sender", level, "send.ok", append(jobAttrs(j),
		slog.String("status", "ok"),
		slog.Int("attempts", attempts),
		slog.Duration("elapsed", elapsed),
	)...)
}

// attempt runs j until it succeeds, fails permanently, exhausts MaxRetries
// or runs past MaxDuration.
func (d *Dispatcher) attempt(j job) (int, error) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	limit := d.opts.MaxRetries + 1
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		err := j.run()
		if err == nil {
			return attempt, nil
		}
		delay, retry := d.retryDelay(err, attempt)
		if !retry || attempt == limit {
			return attempt, err
		}
		if _, flooded := netutil.FloodWait(err); flooded {
			logger.Warn(j.ctx, "tg.sender", "send.flood_wait", append(jobAttrs(j),
				slog.String("status", "rate_limited"),
				slog.Int("attempt", attempt),
				slog.Duration("wait", delay),
			)...)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
}

// retryDelay reports how long to wait before retrying after err, if at all.
func (d *Dispatcher) retryDelay(err error, attempt int) (time.Duration, bool) {
	if wait, flooded := netutil.FloodWait(err); flooded {
		return wait + d.opts.FloodBuffer, true
	}
	if netutil.ShouldRetry(err) {
		return d.opts.RetryBackoff * time.Duration(attempt), true
	}
	return 0, false
}

func jobAttrs(j job) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return attrs
}

// classifyError buckets err for the err_code log field.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if _, flooded := netutil.FloodWait(err); flooded {
		return "flood"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "dial"
	}
	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return "tls"
	}

	switch status := httpStatusFromError(err); {
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}
	return "unknown"
}

// sanitizeErrorMessage prevents accidental leakage of Telegram bot tokens in logs.
func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return logger.RedactToken(err.Error())
}

// httpStatusFromError returns the API error code, falling back to a
// trailing "(NNN)" in the message as telebot formats them.
func httpStatusFromError(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}

	msg := err.Error()
	open, end := strings.LastIndex(msg, "("), strings.LastIndex(msg, ")")
	if open < 0 || end <= open+1 {
		return 0
	}
	code, convErr := strconv.Atoi(strings.TrimSpace(msg[open+1 : end]))
	if convErr != nil {
		return 0
	}
	return code
}
