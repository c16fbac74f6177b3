package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type sent struct {
	To      string
	Kind    Kind
	FileID  string
	Caption string
}

// fakeSender records every submission and answers from a script keyed by call number.
type fakeSender struct {
	mu     sync.Mutex
	calls  []sent
	script func(n int, s sent) error
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	s := sent{To: to.Recipient()}
	switch v := what.(type) {
	case *tele.Video:
		s.Kind, s.FileID, s.Caption = KindVideo, v.FileID, v.Caption
	case *tele.Document:
		s.Kind, s.FileID, s.Caption = KindDocument, v.FileID, v.Caption
	}
	f.mu.Lock()
	f.calls = append(f.calls, s)
	n := len(f.calls)
	f.mu.Unlock()
	if f.script != nil {
		if err := f.script(n, s); err != nil {
			return nil, err
		}
	}
	return &tele.Message{ID: n}, nil
}

func (f *fakeSender) fileIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.FileID
	}
	return out
}

type waitRecorder struct {
	waits []time.Duration
}

func (w *waitRecorder) Wait(_ context.Context, d time.Duration) error {
	w.waits = append(w.waits, d)
	return nil
}

func flood(seconds int) error {
	return tele.FloodError{RetryAfter: seconds}
}

func badRequest(desc string) error {
	return &tele.Error{Code: 400, Description: desc, Message: desc}
}

func newTestEngine(s Sender, w *waitRecorder, opts Options) *Engine {
	opts.Wait = w.Wait
	return NewEngine(s, opts)
}

func TestRelayRewritesCaptionScenario(t *testing.T) {
	s := &fakeSender{}
	w := &waitRecorder{}
	e := newTestEngine(s, w, Options{})

	item := Item{Kind: KindVideo, FileID: "vid-1", Caption: "Fresh episode by @OldName, follow @OldName"}
	res := e.Relay(context.Background(), item, Rule{Remove: "@OldName", Add: "@NewName"}, "@target")

	require.Equal(t, Success, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	require.Len(t, s.calls, 1)
	assert.Equal(t, sent{
		To:      "@target",
		Kind:    KindVideo,
		FileID:  "vid-1",
		Caption: "Fresh episode by @NewName, follow @NewName",
	}, s.calls[0])
	assert.Equal(t, s.calls[0].Caption, res.Caption)
	assert.Empty(t, w.waits)
}

func TestRelaySendsDocumentsAsDocuments(t *testing.T) {
	s := &fakeSender{}
	e := newTestEngine(s, &waitRecorder{}, Options{})

	res := e.Relay(context.Background(), Item{Kind: KindDocument, FileID: "doc-1", Caption: "a.b*c"}, Rule{Remove: "a.b*c", Add: "x"}, "-1001")
	require.Equal(t, Success, res.Outcome)
	assert.Equal(t, KindDocument, s.calls[0].Kind)
	assert.Equal(t, "x", s.calls[0].Caption)
	assert.Equal(t, "-1001", s.calls[0].To)
}

func TestRelayFloodWaitResubmitsSameItem(t *testing.T) {
	s := &fakeSender{script: func(n int, _ sent) error {
		if n == 1 {
			return flood(5)
		}
		return nil
	}}
	w := &waitRecorder{}
	e := newTestEngine(s, w, Options{})

	res := e.Relay(context.Background(), Item{Kind: KindVideo, FileID: "v", Caption: "c"}, Rule{}, "@t")

	require.Equal(t, Success, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []time.Duration{6 * time.Second}, w.waits)
	require.Len(t, s.calls, 2)
	assert.Equal(t, s.calls[0], s.calls[1])
}

func TestRelayFloodWaitHonoursBuffer(t *testing.T) {
	s := &fakeSender{script: func(n int, _ sent) error {
		if n < 3 {
			return flood(n)
		}
		return nil
	}}
	w := &waitRecorder{}
	e := newTestEngine(s, w, Options{FloodBuffer: 3 * time.Second})

	res := e.Relay(context.Background(), Item{Kind: KindVideo, FileID: "v"}, Rule{}, "@t")
	require.Equal(t, Success, res.Outcome)
	assert.Equal(t, []time.Duration{4 * time.Second, 5 * time.Second}, w.waits)
}

func TestRelayPlatformErrorIsFatal(t *testing.T) {
	s := &fakeSender{script: func(int, sent) error { return badRequest("Bad Request: chat not found") }}
	w := &waitRecorder{}
	e := newTestEngine(s, w, Options{})

	res := e.Relay(context.Background(), Item{Kind: KindVideo, FileID: "v"}, Rule{}, "@missing")

	require.Equal(t, FatalFailure, res.Outcome)
	assert.Len(t, s.calls, 1)
	assert.Empty(t, w.waits)
	var pe *PlatformError
	require.ErrorAs(t, res.Err, &pe)
	assert.Equal(t, "Bad Request: chat not found", res.Reason())
}

func TestRelayMaxFloodRetries(t *testing.T) {
	s := &fakeSender{script: func(int, sent) error { return flood(2) }}
	w := &waitRecorder{}
	e := newTestEngine(s, w, Options{MaxFloodRetries: 2})

	res := e.Relay(context.Background(), Item{Kind: KindVideo, FileID: "v"}, Rule{}, "@t")

	require.Equal(t, RetryableFailure, res.Outcome)
	require.ErrorIs(t, res.Err, ErrFloodLimit)
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, s.calls, 3)
	assert.Len(t, w.waits, 2)
	assert.Equal(t, 3*time.Second, res.Wait)
	assert.Contains(t, res.Reason(), "rate limited")
}

func TestRelayMaxFloodWait(t *testing.T) {
	s := &fakeSender{script: func(int, sent) error { return flood(600) }}
	w := &waitRecorder{}
	e := newTestEngine(s, w, Options{MaxFloodWait: time.Minute})

	res := e.Relay(context.Background(), Item{Kind: KindVideo, FileID: "v"}, Rule{}, "@t")
	require.Equal(t, RetryableFailure, res.Outcome)
	assert.Equal(t, 601*time.Second, res.Wait)
	assert.Empty(t, w.waits)
}

func TestRelayWaitHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &fakeSender{script: func(int, sent) error { return flood(30) }}
	e := NewEngine(s, Options{Wait: func(ctx context.Context, _ time.Duration) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}})

	res := e.Relay(ctx, Item{Kind: KindVideo, FileID: "v"}, Rule{}, "@t")
	require.Equal(t, RetryableFailure, res.Outcome)
	require.ErrorIs(t, res.Err, context.Canceled)
	assert.Len(t, s.calls, 1)
}

func TestDefaultWaitStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := sleep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	require.NoError(t, sleep(context.Background(), time.Millisecond))
}

type fakeDeleter struct {
	deleted []tele.Editable
	err     error
}

func (d *fakeDeleter) Delete(msg tele.Editable) error {
	d.deleted = append(d.deleted, msg)
	return d.err
}

func TestRelayDeleteSource(t *testing.T) {
	item := Item{Kind: KindVideo, FileID: "v", SourceChat: 42, SourceMessageID: 7}

	d := &fakeDeleter{}
	e := newTestEngine(&fakeSender{}, &waitRecorder{}, Options{DeleteSource: true, Deleter: d})
	require.Equal(t, Success, e.Relay(context.Background(), item, Rule{}, "@t").Outcome)
	require.Len(t, d.deleted, 1)
	msgID, chatID := d.deleted[0].MessageSig()
	assert.Equal(t, "7", msgID)
	assert.Equal(t, int64(42), chatID)

	// failures never delete
	d = &fakeDeleter{}
	failing := &fakeSender{script: func(int, sent) error { return badRequest("nope") }}
	e = newTestEngine(failing, &waitRecorder{}, Options{DeleteSource: true, Deleter: d})
	e.Relay(context.Background(), item, Rule{}, "@t")
	assert.Empty(t, d.deleted)

	// delete errors are not fatal
	d = &fakeDeleter{err: errors.New("message can't be deleted")}
	e = newTestEngine(&fakeSender{}, &waitRecorder{}, Options{DeleteSource: true, Deleter: d})
	assert.Equal(t, Success, e.Relay(context.Background(), item, Rule{}, "@t").Outcome)

	// disabled by default
	d = &fakeDeleter{}
	e = newTestEngine(&fakeSender{}, &waitRecorder{}, Options{Deleter: d})
	e.Relay(context.Background(), item, Rule{}, "@t")
	assert.Empty(t, d.deleted)
}

type recordingJournal struct {
	entries []Entry
}

func (j *recordingJournal) Record(_ context.Context, e Entry) error {
	j.entries = append(j.entries, e)
	return nil
}

type recordingObserver struct {
	outcomes []Outcome
	floods   []time.Duration
	reports  []Report
}

func (o *recordingObserver) RelayFinished(_ Kind, outcome Outcome, _ int, _ time.Duration) {
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) FloodWaited(wait time.Duration) { o.floods = append(o.floods, wait) }

func (o *recordingObserver) BatchFinished(r Report) { o.reports = append(o.reports, r) }

func TestRelayFeedsJournalAndObserver(t *testing.T) {
	s := &fakeSender{script: func(n int, _ sent) error {
		if n == 1 {
			return flood(1)
		}
		return nil
	}}
	j := &recordingJournal{}
	o := &recordingObserver{}
	e := newTestEngine(s, &waitRecorder{}, Options{Journal: j, Observer: o})

	e.Relay(context.Background(), Item{Kind: KindDocument, FileID: "d", Caption: "old"}, Rule{Remove: "old", Add: "new"}, "@t")

	require.Len(t, j.entries, 1)
	assert.Equal(t, Entry{
		Destination: "@t",
		Kind:        KindDocument,
		FileID:      "d",
		Caption:     "new",
		Outcome:     Success,
		Attempts:    2,
	}, j.entries[0])
	assert.Equal(t, []Outcome{Success}, o.outcomes)
	assert.Equal(t, []time.Duration{2 * time.Second}, o.floods)
}
