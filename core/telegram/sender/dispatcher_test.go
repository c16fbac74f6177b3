package sender

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestDispatcherRetriesFloodThenSucceeds(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, FloodBuffer: time.Millisecond})

	var calls atomic.Int32
	done := make(chan struct{})
	err := d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		if calls.Add(1) == 1 {
			return tele.FloodError{RetryAfter: 0}
		}
		close(done)
		return nil
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried after flood error")
	}
	d.Close()

	assert.EqualValues(t, 2, calls.Load())
	assert.Zero(t, d.ErrorCount())
}

func TestDispatcherDoesNotRetryPlatformErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})

	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		calls.Add(1)
		return errors.New("telegram: chat not found (400)")
	}))
	d.Close()

	assert.EqualValues(t, 1, calls.Load())
	assert.EqualValues(t, 1, d.ErrorCount())
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Close()

	err := d.Enqueue(context.Background(), "send.text", "sendMessage", func() error { return nil })
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestDispatcherRejectsNilRun(t *testing.T) {
	d := NewDispatcher(Options{})
	defer d.Close()

	assert.Error(t, d.Enqueue(context.Background(), "send.text", "sendMessage", nil))
}

func TestSanitizeErrorMessageRedactsToken(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:AAE-secret_token/sendMessage": timeout`)
	msg := sanitizeErrorMessage(err)

	assert.NotContains(t, msg, "AAE-secret_token")
	assert.Contains(t, msg, "bot<redacted>")
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "timeout", classifyError(context.DeadlineExceeded))
	assert.Equal(t, "flood", classifyError(tele.FloodError{RetryAfter: 3}))
	assert.Equal(t, "http_4xx", classifyError(errors.New("telegram: bad request (400)")))
	assert.Equal(t, "unknown", classifyError(errors.New("boom")))
}

func TestDispatcherReportsResults(t *testing.T) {
	type result struct {
		action   string
		attempts int
		failed   bool
	}
	results := make(chan result, 2)
	d := NewDispatcher(Options{
		Workers:    1,
		MaxRetries: 1,
		OnResult: func(action string, attempts int, err error) {
			results <- result{action: action, attempts: attempts, failed: err != nil}
		},
	})

	require.NoError(t, d.Enqueue(context.Background(), "send.text", "sendMessage", func() error { return nil }))
	require.NoError(t, d.Enqueue(context.Background(), "send.md", "sendMessage", func() error {
		return errors.New("telegram: message is too long (400)")
	}))
	d.Close()

	assert.Equal(t, result{action: "send.text", attempts: 1}, <-results)
	assert.Equal(t, result{action: "send.md", attempts: 1, failed: true}, <-results)
}
