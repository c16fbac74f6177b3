package state

import "time"

// State identifies a finite-state-machine step used in conversations.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"
)

// Session stores conversation state and the typed payload for a key.
type Session[T any] struct {
	State   State
	Data    T
	Touched time.Time
}

// Manager orchestrates keyed sessions and FSM state transitions.
type Manager[T any] interface {
	Get(key int64) (Session[T], bool)
	Start(key int64, st State, data T)
	Update(key int64, fn func(*Session[T])) bool
	GetState(key int64) State
	InProgress(key int64) bool
	Clear(key int64) bool
	Len() int
	Sweep(idle time.Duration) int
}
