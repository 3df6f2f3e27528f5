package services

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// AccountLocker serializes route executions per account. Acquire blocks or
// fails; the returned release must be called exactly once.
type AccountLocker interface {
	Acquire(ctx context.Context, account common.Address) (func(), error)
}

// LocalLocker is an in-process AccountLocker
type LocalLocker struct {
	mu    sync.Mutex
	slots map[common.Address]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[common.Address]chan struct{})}
}

// Acquire waits until the account is free or ctx ends
func (l *LocalLocker) Acquire(ctx context.Context, account common.Address) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	slot, ok := l.slots[account]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[account] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-slot })
	}, nil
}

// StackedLocker acquires every locker in order and releases in reverse,
// e.g. a local lock followed by a distributed one.
type StackedLocker []AccountLocker

func (s StackedLocker) Acquire(ctx context.Context, account common.Address) (func(), error) {
	releases := make([]func(), 0, len(s))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, l := range s {
		release, err := l.Acquire(ctx, account)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
