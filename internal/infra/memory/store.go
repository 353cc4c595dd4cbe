// memory is a crossing.Store kept entirely in process memory.
//
// Transactions are optimistic: every document read is recorded with the version it had, writes are
// buffered, and at commit time the read versions are validated under a lock before the writes are
// applied. A transaction whose reads went stale is run again from scratch.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fedus/safe-crossing-cf/internal/config"
	"github.com/fedus/safe-crossing-cf/internal/domain/crossing"
	"github.com/fedus/safe-crossing-cf/internal/domain/meta"
	"github.com/fedus/safe-crossing-cf/internal/domain/user"
	"github.com/fedus/safe-crossing-cf/internal/domain/vote"
)

// DefaultTransactionAttempts matches what the hosted document stores this replaces use
const DefaultTransactionAttempts uint = 5

type docKind uint8

const (
	crossingDoc docKind = iota
	voteDoc
)

// docRef identifies a single document; absent documents have version 0
type docRef struct {
	kind   docKind
	key    crossing.Key
	userId user.Id
}

type crossingEntry struct {
	version  uint64
	crossing crossing.Crossing
	unseenBy map[user.Id]struct{}
}

type voteEntry struct {
	version uint64
	vote    vote.Vote
}

type voteKey struct {
	key    crossing.Key
	userId user.Id
}

func (k voteKey) ref() docRef {
	return docRef{kind: voteDoc, key: k.key, userId: k.userId}
}

func crossingRef(key crossing.Key) docRef {
	return docRef{kind: crossingDoc, key: key}
}

type Store struct {
	mu sync.RWMutex

	crossings map[crossing.Key]*crossingEntry
	votes     map[voteKey]*voteEntry
	users     map[user.Id]*user.User
	meta      meta.Aggregate

	attempts uint
}

func NewStore(settings config.Storage) *Store {
	attempts := settings.TransactionAttempts
	if attempts == 0 {
		attempts = DefaultTransactionAttempts
	}
	return &Store{
		crossings: make(map[crossing.Key]*crossingEntry),
		votes:     make(map[voteKey]*voteEntry),
		users:     make(map[user.Id]*user.User),
		attempts:  attempts,
	}
}

func (s *Store) RunInTransaction(ctx context.Context, f func(ctx context.Context, tx crossing.Transaction) error) error {
	for attempt := uint(1); attempt <= s.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return crossing.StoreErr{Underlying: err}
		}
		tx := &transaction{
			store: s,
			reads: make(map[docRef]uint64),
		}
		if err := f(ctx, tx); err != nil {
			return err
		}
		if s.commit(tx) {
			return nil
		}
		if log.Debug().Enabled() {
			log.Debug().Uint("attempt", attempt).Msg("Transaction conflicted, retrying")
		}
	}
	return crossing.TransactionConflict{Attempts: s.attempts}
}

// commit applies the transaction's writes if nothing it read has changed since, returning false
// otherwise
func (s *Store) commit(tx *transaction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ref, readVersion := range tx.reads {
		if s.versionOf(ref) != readVersion {
			return false
		}
	}
	for _, write := range tx.writes {
		write(s)
	}
	return true
}

func (s *Store) versionOf(ref docRef) uint64 {
	switch ref.kind {
	case crossingDoc:
		if entry, ok := s.crossings[ref.key]; ok {
			return entry.version
		}
	case voteDoc:
		if entry, ok := s.votes[voteKey{key: ref.key, userId: ref.userId}]; ok {
			return entry.version
		}
	}
	return 0
}

func (s *Store) NewBatch() crossing.Batch {
	return &batch{store: s}
}

func (s *Store) GetUser(ctx context.Context, id user.Id) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if found, ok := s.users[id]; ok {
		u := *found
		return &u, nil
	}
	return nil, user.NotFound{ID: id}
}

func (s *Store) Get(ctx context.Context, key crossing.Key) (*crossing.Crossing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entry, ok := s.crossings[key]; ok {
		c := copyCrossing(&entry.crossing)
		return &c, nil
	}
	return nil, crossing.NotFound{Key: key}
}

func (s *Store) Scan(ctx context.Context, pageSize uint, f func(crossings []crossing.Crossing) error) error {
	return scanPages(ctx, pageSize, s.scanPage, f)
}

func scanPages(ctx context.Context, pageSize uint, nextPage func(after *crossing.Key, pageSize uint) []crossing.Crossing, f func(crossings []crossing.Crossing) error) error {
	if pageSize == 0 {
		pageSize = 1
	}
	var after *crossing.Key
	for {
		if err := ctx.Err(); err != nil {
			return crossing.StoreErr{Underlying: err}
		}
		page := nextPage(after, pageSize)
		if len(page) == 0 {
			return nil
		}
		if err := f(page); err != nil {
			return err
		}
		if uint(len(page)) < pageSize {
			return nil
		}
		last := page[len(page)-1].Key
		after = &last
	}
}

func (s *Store) scanPage(after *crossing.Key, pageSize uint) []crossing.Crossing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanPageLocked(after, pageSize)
}

// scanPageLocked expects the caller to hold the read lock
func (s *Store) scanPageLocked(after *crossing.Key, pageSize uint) []crossing.Crossing {
	keys := make([]crossing.Key, 0, len(s.crossings))
	for k := range s.crossings {
		if after == nil || k > *after {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	if uint(len(keys)) > pageSize {
		keys = keys[:pageSize]
	}
	page := make([]crossing.Crossing, 0, len(keys))
	for _, k := range keys {
		page = append(page, copyCrossing(&s.crossings[k].crossing))
	}
	return page
}

func (s *Store) ListUnseen(ctx context.Context, userId user.Id, after *crossing.Crossing, limit uint) ([]crossing.Crossing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	unseen := make([]crossing.Crossing, 0)
	for _, entry := range s.crossings {
		if _, ok := entry.unseenBy[userId]; !ok {
			continue
		}
		if after != nil && !isAfter(&entry.crossing, after) {
			continue
		}
		unseen = append(unseen, copyCrossing(&entry.crossing))
	}
	sort.Slice(unseen, func(i, j int) bool {
		return isAfter(&unseen[j], &unseen[i])
	})
	if uint(len(unseen)) > limit {
		unseen = unseen[:limit]
	}
	return unseen, nil
}

// isAfter is true when c sorts strictly after cursor in (votes total, key) order
func isAfter(c *crossing.Crossing, cursor *crossing.Crossing) bool {
	if c.VotesTotal != cursor.VotesTotal {
		return c.VotesTotal > cursor.VotesTotal
	}
	return c.Key > cursor.Key
}

func (s *Store) GetMeta(ctx context.Context) (*meta.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg := s.meta
	return &agg, nil
}

// ReadSnapshot holds the read lock for as long as f runs, so commits wait until it returns
func (s *Store) ReadSnapshot(ctx context.Context, f func(ctx context.Context, snapshot crossing.Snapshot) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return f(ctx, &snapshot{store: s})
}

// snapshot reads without locking; ReadSnapshot already holds the lock
type snapshot struct {
	store *Store
}

func (v *snapshot) Scan(ctx context.Context, pageSize uint, f func(crossings []crossing.Crossing) error) error {
	return scanPages(ctx, pageSize, v.store.scanPageLocked, f)
}

func (v *snapshot) GetMeta(ctx context.Context) (*meta.Aggregate, error) {
	agg := v.store.meta
	return &agg, nil
}

func (s *Store) Import(ctx context.Context, crossings []crossing.NewCrossing) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var imported uint
	for _, newCrossing := range crossings {
		key := newCrossing.NodeId.Key()
		if _, exists := s.crossings[key]; exists {
			continue
		}
		unseenBy := make(map[user.Id]struct{})
		for id, u := range s.users {
			if u.Initialized {
				unseenBy[id] = struct{}{}
			}
		}
		var location *crossing.Location
		if newCrossing.Location != nil {
			l := *newCrossing.Location
			location = &l
		}
		s.crossings[key] = &crossingEntry{
			version: 1,
			crossing: crossing.Crossing{
				Key:      key,
				NodeId:   newCrossing.NodeId,
				Location: location,
			},
			unseenBy: unseenBy,
		}
		imported++
	}
	return imported, nil
}

// UnseenBy returns the users that have yet to vote on a crossing, for inspection in tests and tooling
func (s *Store) UnseenBy(ctx context.Context, key crossing.Key) ([]user.Id, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]user.Id, 0)
	if entry, ok := s.crossings[key]; ok {
		for id := range entry.unseenBy {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

var _ crossing.Store = (*Store)(nil)

func copyCrossing(c *crossing.Crossing) crossing.Crossing {
	copied := *c
	if c.Location != nil {
		l := *c.Location
		copied.Location = &l
	}
	if c.CurrentResult != nil {
		r := *c.CurrentResult
		copied.CurrentResult = &r
	}
	return copied
}
