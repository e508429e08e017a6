//go:build linux

package affinity

import "golang.org/x/sys/unix"

// setAffinity pins the calling thread to core via sched_setaffinity(2).
func setAffinity(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set)
}
