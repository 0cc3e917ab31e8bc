// Package kmutex provides a mutex keyed by string, used to serialize
// risk authorization and ledger writes per market.
package kmutex

import "sync"

type KMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New() *KMutex {
	return &KMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock func.
// Locks for distinct keys are independent.
func (k *KMutex) Lock(key string) func() {
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
