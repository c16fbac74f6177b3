package conversation

import (
	"errors"

	"github.com/m3rciful/captionrelay/core/telegram/state"
	"github.com/m3rciful/captionrelay/internal/relay"
)

// Conversation steps. Terminal is the absence of a session (state.StateIdle).
const (
	StateAwaitRemoveWord state.State = "await_remove_word"
	StateAwaitAddWord    state.State = "await_add_word"
	StateAwaitChannel    state.State = "await_channel"
	StateAwaitMedia      state.State = "await_media"
)

// Relay modes.
const (
	ModeBatch   = "batch"
	ModeInstant = "instant"
)

// DefaultQueueLimit caps a batch queue when no limit is configured.
const DefaultQueueLimit = 50

var (
	// ErrNotConfigured means media arrived before the caption rule and channel were collected.
	ErrNotConfigured = errors.New("conversation: caption rule not configured")
	// ErrNoChannel means a commit was requested without a target channel.
	ErrNoChannel = errors.New("conversation: target channel not set")
	// ErrQueueFull means the batch queue reached its limit.
	ErrQueueFull = errors.New("conversation: queue is full")
)

// Draft is the per-conversation memory collected by the guided steps.
type Draft struct {
	RemoveWord string
	AddWord    string
	Channel    relay.Destination
	Queue      []relay.Item
}

// Rule returns the caption substitution collected so far.
func (d Draft) Rule() relay.Rule {
	return relay.Rule{Remove: d.RemoveWord, Add: d.AddWord}
}

// Store is the keyed session store used by the flow.
type Store = state.Manager[Draft]

// NewStore returns an in-memory Store.
func NewStore() *state.Memory[Draft] {
	return state.NewMemory[Draft]()
}

func stepName(st state.State) string {
	switch st {
	case StateAwaitRemoveWord:
		return "waiting for the word to remove"
	case StateAwaitAddWord:
		return "waiting for the replacement word"
	case StateAwaitChannel:
		return "waiting for the target channel"
	case StateAwaitMedia:
		return "collecting media"
	}
	return "idle"
}
