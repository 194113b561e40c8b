package services

import (
	"hash/fnv"
	"sync"
)

// keyLock serializes operations per string key with a fixed pool of
// striped mutexes. Distinct keys may share a stripe; that costs a little
// contention, never correctness. Status transitions additionally carry an
// optimistic version check in the database, so the lock only narrows the
// race window for work running inside this process.
type keyLock struct {
	stripes []sync.Mutex
}

func newKeyLock(n int) *keyLock {
	if n <= 0 {
		n = 64
	}
	return &keyLock{stripes: make([]sync.Mutex, n)}
}

func (l *keyLock) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &l.stripes[int(h.Sum32())%len(l.stripes)]
	m.Lock()
	return m.Unlock
}
