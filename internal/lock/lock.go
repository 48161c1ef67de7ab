// Package lock provides the mutual exclusion used around re-audits and
// same-phone candidates: a Redis lock shared across processes, and an
// in-process fallback when no Redis is configured.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// ErrNotAcquired is returned by callers that give up when a lock is held
// elsewhere.
var ErrNotAcquired = eris.New("lock: held by another owner")

// Locker is a non-blocking lock.
// A Locker is owned by one goroutine; use one instance per critical section.
type Locker interface {
	// Acquire tries to take the lock and reports whether it did.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock up if this instance still owns it.
	Release(ctx context.Context) error
}

// New returns a Redis lock when client is non-nil and a process-local lock
// otherwise.
func New(client redis.UniversalClient, key string, ttl time.Duration) Locker {
	if client != nil {
		return NewRedisLock(client, key, ttl)
	}
	return &localLock{key: key}
}

// localLocks holds the keys taken by localLock instances in this process.
var localLocks sync.Map

type localLock struct {
	key  string
	held bool
}

func (l *localLock) Acquire(_ context.Context) (bool, error) {
	_, loaded := localLocks.LoadOrStore(l.key, struct{}{})
	l.held = !loaded
	return l.held, nil
}

func (l *localLock) Release(_ context.Context) error {
	if l.held {
		localLocks.Delete(l.key)
		l.held = false
	}
	return nil
}

// KeyedMutex serializes work per key inside one process. Unlike Locker it
// blocks until the key is free.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns the function that frees it.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Len returns the number of keys currently locked or waited on.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
