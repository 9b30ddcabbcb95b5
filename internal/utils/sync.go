package utils

import (
	"sync"
)

// OptionalMutex is a mutex that can be turned off at construction time, for heaps that are
// externally synchronized. All heap mutation and collection must happen on a single logical
// thread; when the consumer cannot guarantee that, the heap serializes every operation through
// this mutex instead.
type OptionalMutex struct {
	Mutex    sync.Mutex
	UseMutex bool
}

func (m *OptionalMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}
