package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func videos(ids ...string) []Item {
	items := make([]Item, len(ids))
	for i, id := range ids {
		items[i] = Item{Kind: KindVideo, FileID: id, Caption: "by @OldName"}
	}
	return items
}

func TestRelayBatchThreeItemsWithOneFloodWait(t *testing.T) {
	s := &fakeSender{script: func(n int, _ sent) error {
		if n == 2 {
			return flood(5)
		}
		return nil
	}}
	w := &waitRecorder{}
	o := &recordingObserver{}
	e := newTestEngine(s, w, Options{Observer: o})

	var progress []int
	rep := e.RelayBatch(context.Background(), videos("a", "b", "c"), Rule{Remove: "@OldName", Add: "@NewName"}, "@t",
		func(pos int, _ Item, res Result) {
			assert.Equal(t, Success, res.Outcome)
			progress = append(progress, pos)
		})

	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 3, rep.Succeeded)
	assert.Zero(t, rep.Failed)
	assert.NotEmpty(t, rep.BatchID)
	assert.Equal(t, []int{1, 2, 3}, progress)
	assert.Equal(t, []string{"a", "b", "b", "c"}, s.fileIDs())
	assert.Equal(t, []time.Duration{6 * time.Second}, w.waits)
	for _, c := range s.calls {
		assert.Equal(t, "by @NewName", c.Caption)
	}
	require.Len(t, o.reports, 1)
	assert.Equal(t, rep.BatchID, o.reports[0].BatchID)
}

func TestRelayBatchPreservesOrderUnderRepeatedFloods(t *testing.T) {
	s := &fakeSender{script: func(n int, c sent) error {
		// every item is rejected once before it goes through
		if n%2 == 1 {
			return flood(1)
		}
		return nil
	}}
	w := &waitRecorder{}
	e := newTestEngine(s, w, Options{})

	rep := e.RelayBatch(context.Background(), videos("1", "2", "3", "4"), Rule{}, "@t", nil)

	assert.Equal(t, 4, rep.Succeeded)
	assert.Equal(t, []string{"1", "1", "2", "2", "3", "3", "4", "4"}, s.fileIDs())
	assert.Len(t, w.waits, 4)
}

func TestRelayBatchFatalItemDoesNotStopTheRest(t *testing.T) {
	s := &fakeSender{script: func(_ int, c sent) error {
		if c.FileID == "b" {
			return badRequest("Bad Request: wrong file identifier")
		}
		return nil
	}}
	e := newTestEngine(s, &waitRecorder{}, Options{})

	rep := e.RelayBatch(context.Background(), videos("a", "b", "c", "d"), Rule{}, "@t", nil)

	assert.Equal(t, 4, rep.Total)
	assert.Equal(t, 3, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, 2, rep.Failures[0].Position)
	assert.Equal(t, "b", rep.Failures[0].Item.FileID)
	assert.Equal(t, FatalFailure, rep.Failures[0].Result.Outcome)
	assert.Equal(t, []string{"a", "b", "c", "d"}, s.fileIDs())
}

func TestRelayBatchEmptyMakesNoCalls(t *testing.T) {
	s := &fakeSender{}
	o := &recordingObserver{}
	e := newTestEngine(s, &waitRecorder{}, Options{Observer: o})

	called := false
	rep := e.RelayBatch(context.Background(), nil, Rule{}, "@t", func(int, Item, Result) { called = true })

	assert.Zero(t, rep.Total)
	assert.Zero(t, rep.Succeeded)
	assert.Empty(t, s.calls)
	assert.False(t, called)
	assert.Empty(t, o.reports)
}

func TestRelayBatchStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &fakeSender{}
	e := newTestEngine(s, &waitRecorder{}, Options{})

	rep := e.RelayBatch(ctx, videos("a", "b", "c"), Rule{}, "@t", func(pos int, _ Item, _ Result) {
		if pos == 1 {
			cancel()
		}
	})

	assert.Equal(t, 1, rep.Succeeded)
	assert.Equal(t, 2, rep.Skipped)
	assert.Equal(t, []string{"a"}, s.fileIDs())
}

func TestRelayBatchTagsJournalEntries(t *testing.T) {
	j := &recordingJournal{}
	e := newTestEngine(&fakeSender{}, &waitRecorder{}, Options{Journal: j})

	rep := e.RelayBatch(context.Background(), videos("a", "b"), Rule{}, "@t", nil)

	require.Len(t, j.entries, 2)
	for _, entry := range j.entries {
		assert.Equal(t, rep.BatchID, entry.BatchID)
	}
}
