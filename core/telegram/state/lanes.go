package state

import "sync"

// Lanes serializes work per session key. Distinct keys never block each other.
type Lanes struct {
	mu    sync.Mutex
	lanes map[int64]*lane
}

type lane struct {
	mu   sync.Mutex
	refs int
}

// NewLanes returns an empty lane set.
func NewLanes() *Lanes {
	return &Lanes{lanes: make(map[int64]*lane)}
}

// Lock blocks until key is free and returns the func that releases it.
func (l *Lanes) Lock(key int64) (unlock func()) {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane{}
		l.lanes[key] = ln
	}
	ln.refs++
	l.mu.Unlock()

	ln.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			ln.mu.Unlock()
			l.mu.Lock()
			ln.refs--
			if ln.refs == 0 {
				delete(l.lanes, key)
			}
			l.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently held or awaited.
func (l *Lanes) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}
