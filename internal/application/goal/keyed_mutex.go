package goal

import (
	"bytes"
	"sync"

	"github.com/google/uuid"
)

// keyedMutex provides per-goal mutual exclusion so unrelated goals never
// serialize on each other. Entries are reference-counted and dropped when
// the last holder unlocks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*lockEntry)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) Lock(key uuid.UUID) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// LockPair acquires both keys in deterministic ID order to avoid deadlock
// between concurrent transfers. The keys must differ.
func (k *keyedMutex) LockPair(a, b uuid.UUID) func() {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	unlockA := k.Lock(a)
	unlockB := k.Lock(b)
	return func() {
		unlockB()
		unlockA()
	}
}
