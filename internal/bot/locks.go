package bot

import "sync"

// LockManager serializes message processing per phone number. Entries are
// created lazily and evicted once no goroutine holds or waits for them, so
// the map does not grow with every phone number ever seen.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*phoneLock
}

type phoneLock struct {
	mu   sync.Mutex
	refs int
}

func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]*phoneLock)}
}

// WithLock runs fn holding the exclusive lock for phone. Calls for
// different phones proceed in parallel; calls for the same phone queue and
// run one at a time. The lock is released even if fn panics.
func (m *LockManager) WithLock(phone string, fn func() error) error {
	m.mu.Lock()
	l, ok := m.locks[phone]
	if !ok {
		l = &phoneLock{}
		m.locks[phone] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	defer func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, phone)
		}
		m.mu.Unlock()
	}()

	return fn()
}

// Len reports how many phone numbers currently have live lock entries.
func (m *LockManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
