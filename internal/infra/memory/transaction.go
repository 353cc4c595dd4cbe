package memory

import (
	"context"

	"github.com/fedus/safe-crossing-cf/internal/domain/crossing"
	"github.com/fedus/safe-crossing-cf/internal/domain/meta"
	"github.com/fedus/safe-crossing-cf/internal/domain/user"
	"github.com/fedus/safe-crossing-cf/internal/domain/vote"
)

type write func(s *Store)

type transaction struct {
	store *Store
	// versions seen by every read, validated at commit
	reads  map[docRef]uint64
	writes []write
}

func (t *transaction) record(ref docRef, version uint64) error {
	if len(t.writes) > 0 {
		return crossing.ReadAfterWrite{}
	}
	t.reads[ref] = version
	return nil
}

func (t *transaction) GetVote(ctx context.Context, key crossing.Key, userId user.Id) (*vote.Vote, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	k := voteKey{key: key, userId: userId}
	entry, ok := t.store.votes[k]
	var version uint64
	if ok {
		version = entry.version
	}
	if err := t.record(k.ref(), version); err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	v := entry.vote
	return &v, nil
}

func (t *transaction) Get(ctx context.Context, key crossing.Key) (*crossing.Crossing, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	entry, ok := t.store.crossings[key]
	var version uint64
	if ok {
		version = entry.version
	}
	if err := t.record(crossingRef(key), version); err != nil {
		return nil, err
	}
	if !ok {
		return nil, crossing.NotFound{Key: key}
	}
	c := copyCrossing(&entry.crossing)
	return &c, nil
}

func (t *transaction) IncrementVotesCast(ctx context.Context, userId user.Id) error {
	t.writes = append(t.writes, func(s *Store) {
		u := s.userOrNew(userId)
		u.TotalVotesCast++
	})
	return nil
}

func (t *transaction) Update(ctx context.Context, key crossing.Key, update crossing.Update) error {
	if _, read := t.reads[crossingRef(key)]; !read {
		// Increments are only meaningful against a version this transaction has seen
		if _, err := t.Get(ctx, key); err != nil {
			return err
		}
	}
	t.writes = append(t.writes, func(s *Store) {
		entry, ok := s.crossings[key]
		if !ok {
			return
		}
		entry.version++
		entry.crossing.Tallies = entry.crossing.Tallies.Plus(update.Increments)
		entry.crossing.VotesTotal += update.Increments.Total()
		result := update.Result
		entry.crossing.CurrentResult = &result
		if update.RemoveUnseenBy != nil {
			delete(entry.unseenBy, *update.RemoveUnseenBy)
		}
	})
	return nil
}

func (t *transaction) UpdateMeta(ctx context.Context, delta meta.Delta) error {
	t.writes = append(t.writes, func(s *Store) {
		s.meta.Apply(delta)
	})
	return nil
}

func (t *transaction) SetVote(ctx context.Context, key crossing.Key, userId user.Id, v vote.Vote) error {
	t.writes = append(t.writes, func(s *Store) {
		k := voteKey{key: key, userId: userId}
		entry, ok := s.votes[k]
		if !ok {
			entry = &voteEntry{}
			s.votes[k] = entry
		}
		entry.version++
		entry.vote = v
	})
	return nil
}

// userOrNew must be called with the write lock held
func (s *Store) userOrNew(userId user.Id) *user.User {
	u, ok := s.users[userId]
	if !ok {
		u = &user.User{ID: userId}
		s.users[userId] = u
	}
	return u
}
