package power

import (
	"context"
	"sync"
)

// addressLocks hands out one mutex per strip address. The mutexes are
// channel semaphores so that waiting can be abandoned when ctx ends.
type addressLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newAddressLocks() *addressLocks {
	return &addressLocks{locks: make(map[string]chan struct{})}
}

// lock blocks until the lock for address is held or ctx is done. The
// returned function releases it.
func (l *addressLocks) lock(ctx context.Context, address string) (func(), error) {
	l.mu.Lock()
	sem, ok := l.locks[address]
	if !ok {
		sem = make(chan struct{}, 1)
		l.locks[address] = sem
	}
	l.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
