// Package affinity implements bitmask-based resource orchestration: one
// pipeline unit per set bit of an immutable core mask, pinned to that
// OS-visible core for the broker's lifetime.
package affinity

import (
	"math/bits"
	"runtime"

	"github.com/yanun0323/logs"
)

// Mask is the u64 core selector the broker's constructor takes as its
// core mask: bit i set means core i hosts exactly one worker.
type Mask uint64

// Cores returns the sorted core indices m designates.
func (m Mask) Cores() []int {
	cores := make([]int, 0, bits.OnesCount64(uint64(m)))
	for i := 0; i < 64; i++ {
		if m&(1<<uint(i)) != 0 {
			cores = append(cores, i)
		}
	}
	return cores
}

// Count reports how many cores m designates.
func (m Mask) Count() int {
	return bits.OnesCount64(uint64(m))
}

// Pin locks the calling goroutine to its current OS thread and pins that
// thread to core. The caller owns the thread for as long as it intends to
// stay pinned — there is no Unpin; call runtime.UnlockOSThread directly if
// the goroutine is about to exit.
func Pin(core int) error {
	runtime.LockOSThread()
	return setAffinity(core)
}

// Spawn runs fn on a new goroutine pinned to core and returns immediately;
// fn's return ends the pinned goroutine. Intended for one pipeline unit's
// Run loop per call.
func Spawn(core int, fn func()) {
	go func() {
		if err := Pin(core); err != nil {
			logs.Warnf("affinity: pin core %d failed, running unpinned: %v", core, err)
		}
		defer runtime.UnlockOSThread()
		fn()
	}()
}
