// Package keymutex serializes work per key (a thread ID, a reminder ID)
// while letting different keys proceed in parallel.
package keymutex

import (
	"hash/maphash"
	"sync"
)

// KeyMutex is a fixed set of mutexes striped by key hash. Two keys may share
// a stripe, which only costs parallelism, never correctness.
type KeyMutex struct {
	seed    maphash.Seed
	stripes []sync.Mutex
}

// New returns a KeyMutex with n stripes (default 64).
func New(n int) *KeyMutex {
	if n <= 0 {
		n = 64
	}
	return &KeyMutex{seed: maphash.MakeSeed(), stripes: make([]sync.Mutex, n)}
}

func (k *KeyMutex) stripe(key string) *sync.Mutex {
	return &k.stripes[maphash.String(k.seed, key)%uint64(len(k.stripes))]
}

// Lock locks the stripe for key.
func (k *KeyMutex) Lock(key string) { k.stripe(key).Lock() }

// Unlock unlocks the stripe for key.
func (k *KeyMutex) Unlock(key string) { k.stripe(key).Unlock() }

// With runs fn while holding the lock for key.
func (k *KeyMutex) With(key string, fn func() error) error {
	m := k.stripe(key)
	m.Lock()
	defer m.Unlock()
	return fn()
}
