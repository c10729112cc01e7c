package order

import (
	"context"
	"sync"
)

// userLocks serializes checkouts of the same user inside one process.
type userLocks struct {
	mu sync.Mutex
	m  map[int64]*userLock
}

type userLock struct {
	ch   chan struct{}
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{m: make(map[int64]*userLock)}
}

// acquire blocks until the lock for id is held or ctx is done.
func (l *userLocks) acquire(ctx context.Context, id int64) (release func(), err error) {
	l.mu.Lock()
	ul, ok := l.m[id]
	if !ok {
		ul = &userLock{ch: make(chan struct{}, 1)}
		l.m[id] = ul
	}
	ul.refs++
	l.mu.Unlock()

	select {
	case ul.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-ul.ch
				l.put(id, ul)
			})
		}, nil
	case <-ctx.Done():
		l.put(id, ul)
		return nil, ctx.Err()
	}
}

func (l *userLocks) put(id int64, ul *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ul.refs--
	if ul.refs == 0 {
		delete(l.m, id)
	}
}

func (l *userLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
