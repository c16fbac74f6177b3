package journal

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/captionrelay/internal/relay"
)

type execCall struct {
	query string
	args  []any
}

type fakeExecer struct {
	mu    sync.Mutex
	calls []execCall
	err   error
	// gate, when set, holds every insert until it is closed.
	gate  chan struct{}
}

func (f *fakeExecer) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, execCall{query: query, args: args})
	return nil, f.err
}

func (f *fakeExecer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestInsertQuery(t *testing.T) {
	query, args, err := insertQuery(relay.Entry{
		BatchID:     "0b7c6f5e-3c1e-4a39-9d51-0f4b1d1b8a11",
		UserID:      42,
		Destination: "@target",
		Kind:        relay.KindVideo,
		FileID:      "vid",
		Caption:     "Episode 1 @NewName HD",
		Outcome:     relay.Success,
		Attempts:    2,
	})
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO relay_journal (batch_id,user_id,destination,media_kind,file_id,caption,outcome,attempts,error) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)",
		query)
	require.Len(t, args, 9)
	assert.Equal(t, sql.NullString{String: "0b7c6f5e-3c1e-4a39-9d51-0f4b1d1b8a11", Valid: true}, args[0])
	assert.Equal(t, int64(42), args[1])
	assert.Equal(t, "video", args[3])
	assert.Equal(t, "success", args[6])
	assert.Equal(t, sql.NullString{}, args[8])
}

func TestRecord(t *testing.T) {
	db := &fakeExecer{}
	j := New(db, Options{})

	err := j.Record(context.Background(), relay.Entry{
		Destination: "-100",
		Kind:        relay.KindDocument,
		FileID:      "doc",
		Outcome:     relay.FatalFailure,
		Attempts:    1,
		Err:         "relay: platform rejected item: chat not found",
	})
	require.NoError(t, err)
	j.Close()

	require.Len(t, db.calls, 1)
	assert.Equal(t, sql.NullString{}, db.calls[0].args[0], "no batch id outside a batch")
	assert.Equal(t, "fatal_failure", db.calls[0].args[6])
	assert.Equal(t, sql.NullString{String: "relay: platform rejected item: chat not found", Valid: true}, db.calls[0].args[8])
}

func TestWriteWrapsExecErrors(t *testing.T) {
	j := New(&fakeExecer{err: errors.New("connection refused")}, Options{})
	defer j.Close()

	err := j.write(context.Background(), relay.Entry{Kind: relay.KindVideo})
	require.ErrorIs(t, err, ErrExecQuery)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRecordDoesNotWaitForDatabase(t *testing.T) {
	db := &fakeExecer{gate: make(chan struct{})}
	j := New(db, Options{QueueSize: 4, Timeout: 5 * time.Second})

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, j.Record(context.Background(), relay.Entry{Kind: relay.KindVideo, FileID: "f"}))
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, db.count())

	close(db.gate)
	j.Close()
	assert.Equal(t, 3, db.count())
}

func TestRecordDropsWhenQueueFull(t *testing.T) {
	db := &fakeExecer{gate: make(chan struct{})}
	j := New(db, Options{QueueSize: 1, Timeout: 5 * time.Second})

	// The writer holds the first entry at the gate; the second fills the queue.
	require.NoError(t, j.Record(context.Background(), relay.Entry{FileID: "1"}))
	require.Eventually(t, func() bool { return len(j.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, j.Record(context.Background(), relay.Entry{FileID: "2"}))

	err := j.Record(context.Background(), relay.Entry{FileID: "3"})
	require.ErrorIs(t, err, ErrQueueFull)

	close(db.gate)
	j.Close()
	assert.Equal(t, 2, db.count())
	require.ErrorIs(t, j.Record(context.Background(), relay.Entry{}), ErrClosed)
}
