// storetest is a conformance suite that every crossing.Store implementation is run against
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/fedus/safe-crossing-cf/internal/config"
	"github.com/fedus/safe-crossing-cf/internal/domain/crossing"
	"github.com/fedus/safe-crossing-cf/internal/domain/meta"
	"github.com/fedus/safe-crossing-cf/internal/domain/tracing"
	"github.com/fedus/safe-crossing-cf/internal/domain/user"
	"github.com/fedus/safe-crossing-cf/internal/domain/vote"
	"github.com/fedus/safe-crossing-cf/internal/domain/voting"
)

// Store is a crossing.Store that can also list a crossing's unseenBy set
type Store interface {
	crossing.Store
	UnseenBy(ctx context.Context, key crossing.Key) ([]user.Id, error)
}

// Factory returns a fresh, empty Store. It should be configured with generous transaction attempts
// because the suite runs concurrent voters.
type Factory func(t *testing.T) Store

type noopSpan struct{}

func (noopSpan) End() {}

type noopTx struct{}

func (noopTx) Context() context.Context { return context.Background() }
func (noopTx) End()                     {}

type noopTracer struct{}

func (noopTracer) BackgroundTx(name string) tracing.Transaction { return noopTx{} }
func (noopTracer) StartSpan(ctx context.Context, name string, spanType string) (context.Context, tracing.Span) {
	return ctx, noopSpan{}
}

var ctx = context.Background()

// Run runs every scenario as a subtest, each against its own Store
func Run(t *testing.T, factory Factory) {
	scenarios := []struct {
		name string
		run  func(t *testing.T, store Store)
	}{
		{"import", testImport},
		{"scan", testScan},
		{"batch", testBatch},
		{"batch too large", testBatchTooLarge},
		{"transaction writes", testTransactionWrites},
		{"read after write", testReadAfterWrite},
		{"update missing crossing", testUpdateMissing},
		{"list unseen", testListUnseen},
		{"initialize user", testInitializeUser},
		{"tallies and results", testTallies},
		{"threshold transitions", testThreshold},
		{"feed pagination", testFeedPagination},
		{"concurrent voters", testConcurrentVoters},
		{"read snapshot", testReadSnapshot},
		{"audit during votes", testAuditDuringVotes},
	}
	for _, s := range scenarios {
		scenario := s
		t.Run(scenario.name, func(t *testing.T) {
			scenario.run(t, factory(t))
		})
	}
}

func newUser() user.Id {
	return user.Id(uuid.New().String())
}

func nodeId(i int) crossing.NodeId {
	return crossing.NodeId(fmt.Sprintf("node/%04d", i))
}

func importN(t *testing.T, store Store, n int) {
	newCrossings := make([]crossing.NewCrossing, 0, n)
	for i := 0; i < n; i++ {
		newCrossings = append(newCrossings, crossing.NewCrossing{NodeId: nodeId(i)})
	}
	imported, err := store.Import(ctx, newCrossings)
	assert.NoError(t, err)
	assert.EqualValues(t, n, imported)
}

func service(store Store) voting.Service {
	return voting.NewService(store, noopTracer{}, config.Voting{InitChunkSize: 7, ScanPageSize: 5, MaxBatchQuantity: 100})
}

func unseenBy(t *testing.T, store Store, key crossing.Key) []user.Id {
	ids, err := store.UnseenBy(ctx, key)
	assert.NoError(t, err)
	return ids
}

func keysOf(crossings []crossing.Crossing) []crossing.Key {
	keys := make([]crossing.Key, 0, len(crossings))
	for _, c := range crossings {
		keys = append(keys, c.Key)
	}
	return keys
}

func testImport(t *testing.T, store Store) {
	initialized := newUser()
	b := store.NewBatch()
	b.MarkInitialized(initialized)
	assert.NoError(t, b.Commit(ctx))

	imported, err := store.Import(ctx, []crossing.NewCrossing{
		{NodeId: "node/1", Location: &crossing.Location{Latitude: 49.61, Longitude: 6.13}},
		{NodeId: "way/2"},
		{NodeId: "node/1"},
	})
	assert.NoError(t, err)
	assert.EqualValues(t, 2, imported)

	c, err := store.Get(ctx, "1")
	assert.NoError(t, err)
	assert.Equal(t, crossing.Crossing{
		Key:      "1",
		NodeId:   "node/1",
		Location: &crossing.Location{Latitude: 49.61, Longitude: 6.13},
	}, *c)
	assert.Equal(t, []user.Id{initialized}, unseenBy(t, store, "1"))

	c, err = store.Get(ctx, "2")
	assert.NoError(t, err)
	assert.Nil(t, c.Location)

	_, err = store.Get(ctx, "3")
	assert.Equal(t, crossing.NotFound{Key: "3"}, err)

	m, err := store.GetMeta(ctx)
	assert.NoError(t, err)
	assert.Equal(t, meta.Aggregate{}, *m)
}

func testScan(t *testing.T, store Store) {
	importN(t, store, 11)
	var seen []crossing.Key
	pages := 0
	err := store.Scan(ctx, 4, func(crossings []crossing.Crossing) error {
		pages++
		assert.True(t, len(crossings) <= 4)
		seen = append(seen, keysOf(crossings)...)
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, pages)
	assert.Len(t, seen, 11)
	for i := 1; i < len(seen); i++ {
		assert.True(t, seen[i-1] < seen[i])
	}
}

func testBatch(t *testing.T, store Store) {
	importN(t, store, 2)
	id := newUser()
	for i := 0; i < 2; i++ {
		b := store.NewBatch()
		b.AddUnseenBy("0000", id)
		b.AddUnseenBy("0000", id)
		b.AddUnseenBy("0001", id)
		b.AddUnseenBy("gone", id)
		b.MarkInitialized(id)
		assert.Equal(t, 5, b.Len())
		assert.NoError(t, b.Commit(ctx))
	}
	assert.Equal(t, []user.Id{id}, unseenBy(t, store, "0000"))
	assert.Equal(t, []user.Id{id}, unseenBy(t, store, "0001"))
	_, err := store.Get(ctx, "gone")
	assert.IsType(t, crossing.NotFound{}, err)

	u, err := store.GetUser(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, user.User{ID: id, Initialized: true}, *u)

	_, err = store.GetUser(ctx, newUser())
	assert.IsType(t, user.NotFound{}, err)
}

func testBatchTooLarge(t *testing.T, store Store) {
	importN(t, store, 1)
	id := newUser()
	b := store.NewBatch()
	for i := 0; i < crossing.MaxBatchWrites; i++ {
		b.AddUnseenBy("0000", id)
	}
	b.MarkInitialized(id)
	err := b.Commit(ctx)
	assert.Equal(t, crossing.BatchTooLarge{Size: crossing.MaxBatchWrites + 1, Max: crossing.MaxBatchWrites}, err)
	assert.Empty(t, unseenBy(t, store, "0000"))
	_, err = store.GetUser(ctx, id)
	assert.IsType(t, user.NotFound{}, err)
}

func testTransactionWrites(t *testing.T, store Store) {
	importN(t, store, 1)
	id := newUser()
	b := store.NewBatch()
	b.AddUnseenBy("0000", id)
	assert.NoError(t, b.Commit(ctx))

	err := store.RunInTransaction(ctx, func(ctx context.Context, tx crossing.Transaction) error {
		prior, err := tx.GetVote(ctx, "0000", id)
		if err != nil {
			return err
		}
		assert.Nil(t, prior)
		if _, err := tx.Get(ctx, "0000"); err != nil {
			return err
		}
		if err := tx.IncrementVotesCast(ctx, id); err != nil {
			return err
		}
		if err := tx.Update(ctx, "0000", crossing.Update{
			Increments:     vote.Tallies{TooClose: 1},
			RemoveUnseenBy: &id,
			Result:         vote.RESULT_TOO_CLOSE,
		}); err != nil {
			return err
		}
		if err := tx.UpdateMeta(ctx, meta.Delta{CrossingsWithEnoughVotes: 1, TooClose: 1}); err != nil {
			return err
		}
		return tx.SetVote(ctx, "0000", id, vote.TOO_CLOSE)
	})
	assert.NoError(t, err)

	c, err := store.Get(ctx, "0000")
	assert.NoError(t, err)
	assert.Equal(t, vote.Tallies{TooClose: 1}, c.Tallies)
	assert.Equal(t, 1, c.VotesTotal)
	if assert.NotNil(t, c.CurrentResult) {
		assert.Equal(t, vote.RESULT_TOO_CLOSE, *c.CurrentResult)
	}
	assert.Empty(t, unseenBy(t, store, "0000"))

	u, err := store.GetUser(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, user.User{ID: id, TotalVotesCast: 1}, *u)

	m, err := store.GetMeta(ctx)
	assert.NoError(t, err)
	assert.Equal(t, meta.Aggregate{CrossingsWithEnoughVotes: 1, TooClose: 1}, *m)

	err = store.RunInTransaction(ctx, func(ctx context.Context, tx crossing.Transaction) error {
		prior, err := tx.GetVote(ctx, "0000", id)
		if err != nil {
			return err
		}
		if assert.NotNil(t, prior) {
			assert.Equal(t, vote.TOO_CLOSE, *prior)
		}
		return tx.SetVote(ctx, "0000", id, vote.OK)
	})
	assert.NoError(t, err)
}

func testReadAfterWrite(t *testing.T, store Store) {
	importN(t, store, 1)
	id := newUser()
	err := store.RunInTransaction(ctx, func(ctx context.Context, tx crossing.Transaction) error {
		if err := tx.SetVote(ctx, "0000", id, vote.OK); err != nil {
			return err
		}
		_, err := tx.GetVote(ctx, "0000", id)
		return err
	})
	assert.Equal(t, crossing.ReadAfterWrite{}, err)

	// Rolled back
	err = store.RunInTransaction(ctx, func(ctx context.Context, tx crossing.Transaction) error {
		prior, err := tx.GetVote(ctx, "0000", id)
		assert.Nil(t, prior)
		return err
	})
	assert.NoError(t, err)
}

func testUpdateMissing(t *testing.T, store Store) {
	err := store.RunInTransaction(ctx, func(ctx context.Context, tx crossing.Transaction) error {
		_, err := tx.Get(ctx, "nope")
		return err
	})
	assert.Equal(t, crossing.NotFound{Key: "nope"}, err)
}

func testListUnseen(t *testing.T, store Store) {
	importN(t, store, 4)
	id, other := newUser(), newUser()
	b := store.NewBatch()
	for i := 0; i < 4; i++ {
		b.AddUnseenBy(nodeId(i).Key(), id)
	}
	b.AddUnseenBy("0003", other)
	assert.NoError(t, b.Commit(ctx))

	s := service(store)
	assert.NoError(t, s.CastVote(ctx, other, nodeId(3), vote.OK))
	assert.NoError(t, s.CastVote(ctx, newUser(), nodeId(0), vote.OK))
	assert.NoError(t, s.CastVote(ctx, newUser(), nodeId(0), vote.OK))

	all, err := store.ListUnseen(ctx, id, nil, 10)
	assert.NoError(t, err)
	assert.Equal(t, []crossing.Key{"0001", "0002", "0003", "0000"}, keysOf(all))

	page, err := store.ListUnseen(ctx, id, &all[1], 2)
	assert.NoError(t, err)
	assert.Equal(t, []crossing.Key{"0003", "0000"}, keysOf(page))

	page, err = store.ListUnseen(ctx, id, &all[3], 2)
	assert.NoError(t, err)
	assert.Empty(t, page)

	none, err := store.ListUnseen(ctx, other, nil, 10)
	assert.NoError(t, err)
	assert.Empty(t, none)
}

func testInitializeUser(t *testing.T, store Store) {
	importN(t, store, 20)
	s := service(store)
	id := newUser()

	outcome, err := s.InitializeUser(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, voting.USER_INITIALIZED, outcome)
	outcome, err = s.InitializeUser(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, voting.USER_ALREADY_INITIALIZED, outcome)

	for i := 0; i < 20; i++ {
		assert.Equal(t, []user.Id{id}, unseenBy(t, store, nodeId(i).Key()))
	}

	// Crossings imported later are visible to the user too
	imported, err := s.ImportCrossings(ctx, []crossing.NewCrossing{{NodeId: "node/late"}})
	assert.NoError(t, err)
	assert.EqualValues(t, 1, imported)
	assert.Equal(t, []user.Id{id}, unseenBy(t, store, "late"))
}

func testTallies(t *testing.T, store Store) {
	importN(t, store, 3)
	s := service(store)
	for _, v := range []vote.Vote{vote.OK, vote.OK, vote.TOO_CLOSE} {
		assert.NoError(t, s.CastVote(ctx, newUser(), nodeId(0), v))
	}
	c, err := store.Get(ctx, "0000")
	assert.NoError(t, err)
	assert.Equal(t, vote.Tallies{Ok: 2, TooClose: 1}, c.Tallies)
	assert.Equal(t, vote.RESULT_OK, *c.CurrentResult)

	for _, v := range []vote.Vote{vote.NOT_SURE, vote.OK} {
		assert.NoError(t, s.CastVote(ctx, newUser(), nodeId(1), v))
	}
	c, err = store.Get(ctx, "0001")
	assert.NoError(t, err)
	assert.Equal(t, vote.RESULT_TIE, *c.CurrentResult)

	reviser := newUser()
	assert.NoError(t, s.CastVote(ctx, reviser, nodeId(2), vote.NOT_SURE))
	assert.NoError(t, s.CastVote(ctx, reviser, nodeId(2), vote.OK))
	assert.NoError(t, s.CastVote(ctx, reviser, nodeId(2), vote.OK))
	c, err = store.Get(ctx, "0002")
	assert.NoError(t, err)
	assert.Equal(t, vote.Tallies{Ok: 1}, c.Tallies)
	assert.Equal(t, 1, c.VotesTotal)
	u, err := store.GetUser(ctx, reviser)
	assert.NoError(t, err)
	assert.Equal(t, 1, u.TotalVotesCast)
}

func testThreshold(t *testing.T, store Store) {
	importN(t, store, 1)
	s := service(store)
	flipper := newUser()
	for _, v := range []vote.Vote{vote.NOT_SURE, vote.NOT_SURE, vote.OK, vote.OK} {
		assert.NoError(t, s.CastVote(ctx, newUser(), nodeId(0), v))
	}
	m, err := s.Meta(ctx)
	assert.NoError(t, err)
	assert.Equal(t, meta.Aggregate{}, *m)

	assert.NoError(t, s.CastVote(ctx, flipper, nodeId(0), vote.TOO_CLOSE))
	m, err = s.Meta(ctx)
	assert.NoError(t, err)
	assert.Equal(t, meta.Aggregate{CrossingsWithEnoughVotes: 1, Tie: 1}, *m)

	assert.NoError(t, s.CastVote(ctx, flipper, nodeId(0), vote.NOT_SURE))
	m, err = s.Meta(ctx)
	assert.NoError(t, err)
	assert.Equal(t, meta.Aggregate{CrossingsWithEnoughVotes: 1, NotSure: 1}, *m)

	assert.NoError(t, s.CastVote(ctx, newUser(), nodeId(0), vote.OK))
	assert.NoError(t, s.CastVote(ctx, newUser(), nodeId(0), vote.OK))
	m, err = s.Meta(ctx)
	assert.NoError(t, err)
	assert.Equal(t, meta.Aggregate{CrossingsWithEnoughVotes: 1, Ok: 1}, *m)

	report, err := s.Audit(ctx)
	assert.NoError(t, err)
	assert.True(t, report.Ok())
}

func testFeedPagination(t *testing.T, store Store) {
	importN(t, store, 17)
	s := service(store)
	id := newUser()
	_, err := s.InitializeUser(ctx, id)
	assert.NoError(t, err)
	for i := 0; i < 17; i += 2 {
		assert.NoError(t, s.CastVote(ctx, newUser(), nodeId(i), vote.OK))
	}
	for i := 0; i < 17; i += 5 {
		assert.NoError(t, s.CastVote(ctx, newUser(), nodeId(i), vote.NOT_SURE))
	}
	assert.NoError(t, s.CastVote(ctx, id, nodeId(4), vote.OK))

	all, err := s.NextBatch(ctx, id, 100, nil)
	assert.NoError(t, err)
	assert.Len(t, all, 16)
	for i, c := range all {
		assert.NotEqual(t, crossing.Key("0004"), c.Key)
		if i > 0 {
			assert.True(t, all[i-1].VotesTotal <= c.VotesTotal)
		}
	}

	var paged []crossing.Crossing
	var cursor *crossing.NodeId
	for {
		page, err := s.NextBatch(ctx, id, 3, cursor)
		assert.NoError(t, err)
		if len(page) == 0 {
			break
		}
		paged = append(paged, page...)
		last := page[len(page)-1].NodeId
		cursor = &last
	}
	assert.Equal(t, keysOf(all), keysOf(paged))
}

func testConcurrentVoters(t *testing.T, store Store) {
	importN(t, store, 3)
	s := service(store)
	voters := 30

	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := newUser()
			target := nodeId(i % 3)
			assert.NoError(t, s.CastVote(ctx, id, target, vote.Vote(i%3)))
			if i%3 == 0 {
				assert.NoError(t, s.CastVote(ctx, id, target, vote.Vote((i+2)%3)))
			}
		}(i)
	}
	wg.Wait()

	report, err := s.Audit(ctx)
	assert.NoError(t, err)
	assert.True(t, report.Ok(), "%+v", report)
	assert.Equal(t, 3, report.StoredMeta.CrossingsWithEnoughVotes)

	total := 0
	for i := 0; i < 3; i++ {
		c, err := store.Get(ctx, nodeId(i).Key())
		assert.NoError(t, err)
		total += c.VotesTotal
	}
	assert.Equal(t, voters, total)
}

func testReadSnapshot(t *testing.T, store Store) {
	importN(t, store, 7)
	s := service(store)
	for _, v := range []vote.Vote{vote.OK, vote.OK, vote.OK, vote.TOO_CLOSE, vote.NOT_SURE} {
		assert.NoError(t, s.CastVote(ctx, newUser(), nodeId(2), v))
	}

	var seen []crossing.Key
	var m *meta.Aggregate
	err := store.ReadSnapshot(ctx, func(ctx context.Context, snapshot crossing.Snapshot) error {
		err := snapshot.Scan(ctx, 3, func(crossings []crossing.Crossing) error {
			seen = append(seen, keysOf(crossings)...)
			return nil
		})
		if err != nil {
			return err
		}
		m, err = snapshot.GetMeta(ctx)
		return err
	})
	assert.NoError(t, err)
	assert.Len(t, seen, 7)
	if assert.NotNil(t, m) {
		assert.Equal(t, meta.Aggregate{CrossingsWithEnoughVotes: 1, Ok: 1}, *m)
	}

	failure := fmt.Errorf("stop")
	err = store.ReadSnapshot(ctx, func(ctx context.Context, snapshot crossing.Snapshot) error {
		return failure
	})
	assert.Equal(t, failure, err)
}

func testAuditDuringVotes(t *testing.T, store Store) {
	importN(t, store, 4)
	s := service(store)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < 3; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-done:
					return
				default:
				}
				id := newUser()
				target := nodeId((w + i) % 4)
				assert.NoError(t, s.CastVote(ctx, id, target, vote.Vote(i%3)))
				if i%2 == 0 {
					assert.NoError(t, s.CastVote(ctx, id, target, vote.Vote((i+1)%3)))
				}
			}
		}(w)
	}

	for i := 0; i < 20; i++ {
		report, err := s.Audit(ctx)
		if assert.NoError(t, err) {
			assert.True(t, report.Ok(), "%+v", report)
		}
	}
	close(done)
	wg.Wait()
}
