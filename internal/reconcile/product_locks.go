package reconcile

import (
	"log/slog"
	"sync"
	"time"
)

// ProductLockManager hands out one mutex per reconciliation key, so writes for
// different products proceed in parallel while writes for one product are serialized
type ProductLockManager struct {
	locks    map[string]*sync.Mutex
	locksMux sync.RWMutex
}

// NewProductLockManager creates a new product lock manager
func NewProductLockManager() *ProductLockManager {
	return &ProductLockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

// GetProductLock returns the mutex for key, creating it on first use
func (plm *ProductLockManager) GetProductLock(key string) *sync.Mutex {
	plm.locksMux.RLock()
	if lock, exists := plm.locks[key]; exists {
		plm.locksMux.RUnlock()
		return lock
	}
	plm.locksMux.RUnlock()

	plm.locksMux.Lock()
	defer plm.locksMux.Unlock()

	// Double-check in case another goroutine created it
	if lock, exists := plm.locks[key]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	plm.locks[key] = lock
	return lock
}

// WithProductLock runs fn while holding the lock for key
func (plm *ProductLockManager) WithProductLock(key string, fn func()) {
	start := time.Now()
	lock := plm.GetProductLock(key)
	lock.Lock()
	defer lock.Unlock()

	fn()

	slog.Debug("Product flush completed",
		"key", key,
		"duration", time.Since(start).String())
}

// Size returns the number of keys that have a lock
func (plm *ProductLockManager) Size() int {
	plm.locksMux.RLock()
	defer plm.locksMux.RUnlock()
	return len(plm.locks)
}
