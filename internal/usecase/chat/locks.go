package chat

import "sync"

// sessionLocks serializes message handling per session. Concurrent messages
// to the same session are processed one at a time; different sessions never
// contend.
type sessionLocks struct {
	locks sync.Map // session ID -> *sync.Mutex
}

func (l *sessionLocks) lock(id string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(id, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m
}

func (l *sessionLocks) forget(id string) {
	l.locks.Delete(id)
}
