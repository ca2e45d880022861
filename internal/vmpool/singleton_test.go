package vmpool

import "sync"

// resetSingletonForTest clears the process-wide singleton so each
// test gets its own t.TempDir()-backed store. VMPool is a true
// singleton in production (one pool per process); tests need a fresh
// one per t.TempDir call, so tests in this package must not run
// t.Parallel() against each other.
func resetSingletonForTest() {
	singleton = nil
	singletonOnce = sync.Once{}
	singletonErr = nil
}
