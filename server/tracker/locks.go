package tracker

import "sync"

// Locker provides key-scoped mutual exclusion. Events for the same pull
// request are serialized; events for different keys proceed concurrently.
type Locker interface {
	Lock(key string)
	Unlock(key string)
}

// MutexMap is a lock table with one mutex per key. Mutexes are created
// lazily and never freed; the set of distinct keys is bounded by the number
// of open pull requests.
type MutexMap struct {
	mutexes sync.Map
}

func NewMutexMap() *MutexMap {
	return &MutexMap{}
}

func (m *MutexMap) Lock(key string) {
	m.mutexFor(key).Lock()
}

func (m *MutexMap) Unlock(key string) {
	m.mutexFor(key).Unlock()
}

func (m *MutexMap) mutexFor(key string) *sync.Mutex {
	mu, ok := m.mutexes.Load(key)
	if !ok {
		mu, _ = m.mutexes.LoadOrStore(key, &sync.Mutex{})
	}
	return mu.(*sync.Mutex)
}
