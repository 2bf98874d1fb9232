package usecase

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultKeyStoreSize bounds how many per-process keys are remembered
const DefaultKeyStoreSize = 64

// KeyStore remembers candidate keys recovered from process memory, per PID,
// plus the most recently learned one
type KeyStore struct {
	keys *lru.Cache[uint32, []byte]

	mu     sync.RWMutex
	latest []byte
}

// NewKeyStore creates a store holding at most size per-process keys
func NewKeyStore(size int) *KeyStore {
	if size <= 0 {
		size = DefaultKeyStoreSize
	}
	// lru.New only fails for non-positive sizes
	cache, _ := lru.New[uint32, []byte](size)
	return &KeyStore{keys: cache}
}

// Learn stores a copy of key for pid and makes it the latest key
func (k *KeyStore) Learn(pid uint32, key []byte) {
	if len(key) == 0 {
		return
	}
	stored := append([]byte(nil), key...)
	k.keys.Add(pid, stored)

	k.mu.Lock()
	k.latest = stored
	k.mu.Unlock()
}

// Lookup returns the key learned from pid
func (k *KeyStore) Lookup(pid uint32) ([]byte, bool) {
	key, ok := k.keys.Get(pid)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), key...), true
}

// Latest returns the most recently learned key
func (k *KeyStore) Latest() ([]byte, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.latest == nil {
		return nil, false
	}
	return append([]byte(nil), k.latest...), true
}

// KeyFor prefers the key learned from pid and falls back to the latest
func (k *KeyStore) KeyFor(pid uint32) ([]byte, bool) {
	if pid != 0 {
		if key, ok := k.Lookup(pid); ok {
			return key, true
		}
	}
	return k.Latest()
}

func (k *KeyStore) Len() int {
	return k.keys.Len()
}
