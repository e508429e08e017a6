//go:build !linux

package affinity

// setAffinity is a documented no-op outside Linux: the worker still runs,
// just unpinned. Pinning is an optimization, not a correctness requirement
// of the broker's state machine, so development on a non-Linux laptop
// stays buildable and testable.
func setAffinity(core int) error {
	return nil
}
