package memory

import (
	"context"

	"github.com/fedus/safe-crossing-cf/internal/domain/crossing"
	"github.com/fedus/safe-crossing-cf/internal/domain/user"
)

type batch struct {
	store  *Store
	writes []write
}

func (b *batch) AddUnseenBy(key crossing.Key, userId user.Id) {
	b.writes = append(b.writes, func(s *Store) {
		// Set-union only; crossings that vanished in the meantime are not resurrected
		if entry, ok := s.crossings[key]; ok {
			if _, present := entry.unseenBy[userId]; !present {
				entry.unseenBy[userId] = struct{}{}
				entry.version++
			}
		}
	})
}

func (b *batch) MarkInitialized(userId user.Id) {
	b.writes = append(b.writes, func(s *Store) {
		s.userOrNew(userId).Initialized = true
	})
}

func (b *batch) Len() int {
	return len(b.writes)
}

func (b *batch) Commit(ctx context.Context) error {
	if len(b.writes) > crossing.MaxBatchWrites {
		return crossing.BatchTooLarge{Size: uint(len(b.writes)), Max: crossing.MaxBatchWrites}
	}
	if err := ctx.Err(); err != nil {
		return crossing.StoreErr{Underlying: err}
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, w := range b.writes {
		w(b.store)
	}
	return nil
}
