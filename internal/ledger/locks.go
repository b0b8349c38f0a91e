package ledger

import "sync"

// keyedMutex serializes all balance mutations for one user key. Two concurrent
// spends (or grants) for the same user would otherwise race on the
// read-check-write of the wallet row; routing them through one mutex per key
// makes each operation's capacity/balance check valid when its write lands.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its unlock function
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}
