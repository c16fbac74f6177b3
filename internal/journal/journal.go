// Package journal records relay outcomes in Postgres for auditing.
// Only file references and captions are stored, never media.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/m3rciful/captionrelay/core/logger"
	"github.com/m3rciful/captionrelay/internal/relay"
)

const table = "relay_journal"

// Defaults for zero Options.
const (
	defaultTimeout   = 3 * time.Second
	defaultQueueSize = 256
)

var (
	// ErrBuildQuery is returned when the insert cannot be built.
	ErrBuildQuery = errors.New("journal: failed to build SQL query")
	// ErrExecQuery is returned when the insert fails.
	ErrExecQuery = errors.New("journal: failed to execute SQL query")
	// ErrQueueFull means the entry was dropped because the writer is behind.
	ErrQueueFull = errors.New("journal: queue full")
	// ErrClosed is returned by Record after Close.
	ErrClosed = errors.New("journal: closed")
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Execer is satisfied by *sqlx.DB and *sql.DB.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Options tune the background writer.
type Options struct {
	// QueueSize bounds the entries waiting for the database.
	QueueSize int
	// Timeout bounds a single insert.
	Timeout time.Duration
}

type pending struct {
	ctx   context.Context
	entry relay.Entry
}

// Journal writes relay entries to the relay_journal table from a single
// background writer, so relays never wait on the database.
type Journal struct {
	db      Execer
	timeout time.Duration
	queue   chan pending

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ relay.Journal = (*Journal)(nil)

// New starts a journal writing through db. Close stops it.
func New(db Execer, opts Options) *Journal {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	j := &Journal{
		db:      db,
		timeout: opts.Timeout,
		queue:   make(chan pending, opts.QueueSize),
		done:    make(chan struct{}),
	}
	go j.run()
	return j
}

// Record queues one entry and returns without waiting for the insert.
// Insert failures are logged by the writer.
func (j *Journal) Record(ctx context.Context, e relay.Entry) error {
	if ctx == nil {
		ctx = context.Background()
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrClosed
	}
	select {
	case j.queue <- pending{ctx: context.WithoutCancel(ctx), entry: e}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting entries and waits until the queued ones are written.
func (j *Journal) Close() {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.mu.Unlock()
	<-j.done
}

func (j *Journal) run() {
	defer close(j.done)
	for p := range j.queue {
		if err := j.write(p.ctx, p.entry); err != nil {
			logger.Warn(p.ctx, "journal", "journal.insert",
				slog.String("status", "fail"),
				slog.String("outcome", p.entry.Outcome.String()),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		}
	}
}

func (j *Journal) write(ctx context.Context, e relay.Entry) error {
	query, args, err := insertQuery(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBuildQuery, err)
	}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	start := time.Now()
	if _, err := j.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: %v", ErrExecQuery, err)
	}
	logger.Debug(ctx, "journal", "journal.insert",
		slog.String("status", "ok"),
		slog.String("outcome", e.Outcome.String()),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	)
	return nil
}

func insertQuery(e relay.Entry) (string, []any, error) {
	return psql.Insert(table).
		Columns(
			"batch_id",
			"user_id",
			"destination",
			"media_kind",
			"file_id",
			"caption",
			"outcome",
			"attempts",
			"error",
		).
		Values(
			nullable(e.BatchID),
			e.UserID,
			string(e.Destination),
			string(e.Kind),
			e.FileID,
			e.Caption,
			e.Outcome.String(),
			e.Attempts,
			nullable(e.Err),
		).
		ToSql()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
