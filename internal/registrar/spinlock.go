package registrar

import (
	"runtime"
	"sync/atomic"
)

// spinlock guards a critical section expected to hold for a handful of
// instructions — the registrar's refcount update plus intent enqueue,
// never across network I/O. A mutex's goroutine park/wake path is wasted
// work at that hold time, so this is the one place the registrar reaches
// past sync.Mutex to hand-rolled atomics.
type spinlock struct {
	locked atomic.Bool
}

func (s *spinlock) Lock() {
	for !s.locked.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (s *spinlock) Unlock() {
	s.locked.Store(false)
}
