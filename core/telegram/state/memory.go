package state

import (
	"sync"
	"time"
)

// Memory is an in-memory Manager implementation guarded by a RWMutex.
type Memory[T any] struct {
	mu       sync.RWMutex
	sessions map[int64]*Session[T]
	now      func() time.Time
}

var _ Manager[struct{}] = (*Memory[struct{}])(nil)

// NewMemory constructs an empty session store.
func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{
		sessions: make(map[int64]*Session[T]),
		now:      time.Now,
	}
}

// Get returns a copy of the session for key.
func (m *Memory[T]) Get(key int64) (Session[T], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if sess, ok := m.sessions[key]; ok {
		return *sess, true
	}
	return Session[T]{State: StateIdle}, false
}

// Start creates or replaces the session for key.
func (m *Memory[T]) Start(key int64, st State, data T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[key] = &Session[T]{State: st, Data: data, Touched: m.now()}
}

// Update mutates an existing session under the write lock and refreshes its
// Touched stamp. It reports false when there is no session for key.
func (m *Memory[T]) Update(key int64, fn func(*Session[T])) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[key]
	if !ok {
		return false
	}
	if fn != nil {
		fn(sess)
	}
	sess.Touched = m.now()
	return true
}

// GetState returns the current FSM state of key, or StateIdle if none exists.
func (m *Memory[T]) GetState(key int64) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sess, ok := m.sessions[key]; ok {
		return sess.State
	}
	return StateIdle
}

// InProgress reports whether key has an active state other than idle.
func (m *Memory[T]) InProgress(key int64) bool {
	return m.GetState(key) != StateIdle
}

// Clear removes the session for key.
func (m *Memory[T]) Clear(key int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sessions[key]
	delete(m.sessions, key)
	return ok
}

// Len returns the number of live sessions.
func (m *Memory[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions untouched for longer than idle and returns how many
// were evicted. A non-positive idle disables eviction.
func (m *Memory[T]) Sweep(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for key, sess := range m.sessions {
		if sess.Touched.Before(cutoff) {
			delete(m.sessions, key)
			evicted++
		}
	}
	return evicted
}
