package conversation

import (
	"sort"
	"sync"

	"github.com/m3rciful/captionrelay/internal/relay"

	tele "gopkg.in/telebot.v4"
)

// inbox holds each chat's messages that wait for the chat lane, ordered by
// message id. Telegram ids grow within a chat, so the order matches what the
// user sent even when handler goroutines start out of order.
type inbox struct {
	mu      sync.Mutex
	pending map[int64][]tele.Context
}

func newInbox() *inbox {
	return &inbox{pending: make(map[int64][]tele.Context)}
}

func (b *inbox) push(key int64, c tele.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.pending[key]
	id := messageID(c)
	i := sort.Search(len(list), func(i int) bool { return messageID(list[i]) > id })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = c
	b.pending[key] = list
}

// take removes and returns the messages of key with an id below before.
// A non-positive before takes everything.
func (b *inbox) take(key int64, before int) []tele.Context {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.pending[key]
	n := len(list)
	if before > 0 {
		n = sort.Search(len(list), func(i int) bool { return messageID(list[i]) >= before })
	}
	if n == 0 {
		return nil
	}
	out := append([]tele.Context(nil), list[:n]...)
	if rest := list[n:]; len(rest) > 0 {
		b.pending[key] = append([]tele.Context(nil), rest...)
	} else {
		delete(b.pending, key)
	}
	return out
}

func messageID(c tele.Context) int {
	if m := c.Message(); m != nil {
		return m.ID
	}
	return 0
}

// insertItem places it into queue after every item with a lower or equal
// source message id. Items without an id go last.
func insertItem(queue []relay.Item, it relay.Item) []relay.Item {
	if it.SourceMessageID == 0 {
		return append(queue, it)
	}
	i := sort.Search(len(queue), func(i int) bool {
		id := queue[i].SourceMessageID
		return id == 0 || id > it.SourceMessageID
	})
	queue = append(queue, relay.Item{})
	copy(queue[i+1:], queue[i:])
	queue[i] = it
	return queue
}
