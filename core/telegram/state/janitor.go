package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/m3rciful/captionrelay/core/logger"
)

// Sweeper is the subset of Manager the janitor needs.
type Sweeper interface {
	Sweep(idle time.Duration) int
	Len() int
}

// Janitor periodically evicts idle sessions.
type Janitor struct {
	scheduler *gocron.Scheduler
	store     Sweeper
	idle      time.Duration
	onEvict   func(n int)
}

// JanitorOption customises a Janitor.
type JanitorOption func(*Janitor)

// OnEvict registers a callback invoked with the number of evicted sessions
// after every sweep that removed at least one.
func OnEvict(fn func(n int)) JanitorOption {
	return func(j *Janitor) { j.onEvict = fn }
}

// StartJanitor schedules a sweep of store every interval and starts it
// asynchronously. Callers must Stop the returned janitor.
func StartJanitor(store Sweeper, interval, idle time.Duration, opts ...JanitorOption) (*Janitor, error) {
	if store == nil {
		return nil, errors.New("state: janitor requires a store")
	}
	if interval <= 0 || idle <= 0 {
		return nil, fmt.Errorf("state: invalid janitor timings interval=%s idle=%s", interval, idle)
	}

	j := &Janitor{
		scheduler: gocron.NewScheduler(time.UTC),
		store:     store,
		idle:      idle,
	}
	for _, opt := range opts {
		opt(j)
	}

	j.scheduler.SingletonModeAll()
	if _, err := j.scheduler.Every(interval).Do(j.sweep); err != nil {
		return nil, fmt.Errorf("state: schedule sweep: %w", err)
	}
	j.scheduler.StartAsync()

	logger.Info(context.Background(), "tg", "session.janitor_start",
		slog.Duration("interval", interval),
		slog.Duration("idle", idle),
	)
	return j, nil
}

func (j *Janitor) sweep() {
	evicted := j.store.Sweep(j.idle)
	if evicted == 0 {
		return
	}
	logger.Info(context.Background(), "tg", "session.sweep",
		slog.Int("evicted", evicted),
		slog.Int("sessions", j.store.Len()),
	)
	if j.onEvict != nil {
		j.onEvict(evicted)
	}
}

// Stop halts the scheduler.
func (j *Janitor) Stop() {
	if j == nil || j.scheduler == nil {
		return
	}
	j.scheduler.Stop()
}
