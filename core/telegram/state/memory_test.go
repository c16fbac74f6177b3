package state

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type draft struct {
	Word  string
	Queue []string
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryLifecycle(t *testing.T) {
	m := NewMemory[draft]()

	assert.Equal(t, StateIdle, m.GetState(7))
	assert.False(t, m.InProgress(7))
	assert.False(t, m.Update(7, func(s *Session[draft]) { s.Data.Word = "x" }))

	m.Start(7, "await_word", draft{})
	require.True(t, m.InProgress(7))

	ok := m.Update(7, func(s *Session[draft]) {
		s.Data.Word = "hello"
		s.Data.Queue = append(s.Data.Queue, "a", "b")
	})
	require.True(t, ok)
	require.True(t, m.Update(7, func(s *Session[draft]) { s.State = "await_media" }))

	sess, found := m.Get(7)
	require.True(t, found)
	assert.Equal(t, State("await_media"), sess.State)
	assert.Equal(t, "hello", sess.Data.Word)
	assert.Equal(t, []string{"a", "b"}, sess.Data.Queue)
	assert.Equal(t, 1, m.Len())

	assert.True(t, m.Clear(7))
	assert.False(t, m.Clear(7))
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, StateIdle, m.GetState(7))
}

func TestMemoryKeysAreIsolated(t *testing.T) {
	m := NewMemory[draft]()
	m.Start(1, "a", draft{Word: "one"})
	m.Start(2, "b", draft{Word: "two"})

	m.Update(1, func(s *Session[draft]) { s.Data.Word = "changed" })

	s2, _ := m.Get(2)
	assert.Equal(t, "two", s2.Data.Word)
	assert.Equal(t, State("b"), s2.State)
}

func TestMemorySweepEvictsIdleSessions(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := NewMemory[draft]()
	m.now = clock.Now

	m.Start(1, "a", draft{})
	clock.Advance(20 * time.Minute)
	m.Start(2, "a", draft{})
	clock.Advance(15 * time.Minute)

	assert.Equal(t, 0, m.Sweep(0))
	assert.Equal(t, 1, m.Sweep(30*time.Minute))
	assert.False(t, m.InProgress(1))
	assert.True(t, m.InProgress(2))

	m.Update(2, nil)
	clock.Advance(29 * time.Minute)
	assert.Equal(t, 0, m.Sweep(30*time.Minute))
}

func TestStartJanitorValidates(t *testing.T) {
	_, err := StartJanitor(nil, time.Second, time.Second)
	require.Error(t, err)

	_, err = StartJanitor(NewMemory[draft](), 0, time.Second)
	require.Error(t, err)
}

func TestJanitorSweepsPeriodically(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := NewMemory[draft]()
	m.now = clock.Now
	m.Start(1, "a", draft{})
	clock.Advance(time.Hour)

	var evicted atomic.Int64
	j, err := StartJanitor(m, 20*time.Millisecond, time.Minute, OnEvict(func(n int) {
		evicted.Add(int64(n))
	}))
	require.NoError(t, err)
	defer j.Stop()

	require.Eventually(t, func() bool { return m.Len() == 0 }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return evicted.Load() == 1 }, time.Second, 10*time.Millisecond)
}
