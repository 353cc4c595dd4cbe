// voting implements the three operations clients drive: user initialization, vote casting and
// the unseen crossings feed, plus the read-only meta and audit operations around them.
package voting

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fedus/safe-crossing-cf/internal/config"
	"github.com/fedus/safe-crossing-cf/internal/domain/crossing"
	"github.com/fedus/safe-crossing-cf/internal/domain/meta"
	"github.com/fedus/safe-crossing-cf/internal/domain/tracing"
	"github.com/fedus/safe-crossing-cf/internal/domain/user"
	"github.com/fedus/safe-crossing-cf/internal/domain/vote"
)

// InitOutcome is what InitializeUser reports back on success
type InitOutcome string

const (
	USER_ALREADY_INITIALIZED InitOutcome = "USER_ALREADY_INITIALIZED"
	USER_INITIALIZED         InitOutcome = "USER_INITIALIZED"
)

// A Service that carries out voting operations on top of a crossing.Store
type Service interface {
	// InitializeUser makes the user eligible to see every existing crossing.
	//
	// Safe to retry after any failure: all writes are idempotent set-unions, and the user is only
	// marked as initialized by the very last write.
	InitializeUser(ctx context.Context, userId user.Id) (InitOutcome, error)

	// CastVote casts or revises the user's vote on a crossing in a single transaction, keeping
	// tallies, the crossing's result and the meta aggregate consistent.
	CastVote(ctx context.Context, userId user.Id, nodeId crossing.NodeId, cast vote.Vote) error

	// NextBatch returns up to quantity crossings the user has not voted on yet, least voted first,
	// continuing strictly after lastNodeId when it is given.
	NextBatch(ctx context.Context, userId user.Id, quantity uint, lastNodeId *crossing.NodeId) ([]crossing.Crossing, error)

	// ImportCrossings inserts seed crossings that do not exist yet
	ImportCrossings(ctx context.Context, crossings []crossing.NewCrossing) (uint, error)

	// Meta returns the current meta aggregate
	Meta(ctx context.Context) (*meta.Aggregate, error)

	// Audit checks the data invariants without modifying anything
	Audit(ctx context.Context) (*AuditReport, error)
}

func NewService(store crossing.Store, tracer tracing.Tracer, settings config.Voting) Service {
	if settings.InitChunkSize == 0 || settings.InitChunkSize >= crossing.MaxBatchWrites {
		log.Warn().
			Uint("configured_chunk_size", settings.InitChunkSize).
			Uint("will_use_chunk_size", config.DefaultVoting.InitChunkSize).
			Msg("Invalid init chunk size configured, ignoring")
		settings.InitChunkSize = config.DefaultVoting.InitChunkSize
	}
	if settings.ScanPageSize == 0 {
		settings.ScanPageSize = config.DefaultVoting.ScanPageSize
	}
	return &serviceImpl{store: store, tracer: tracer, settings: settings}
}

type serviceImpl struct {
	store    crossing.Store
	tracer   tracing.Tracer
	settings config.Voting
}

const spanType = "app"

func (s *serviceImpl) InitializeUser(ctx context.Context, userId user.Id) (InitOutcome, error) {
	userId, err := user.IdFromString(string(userId))
	if err != nil {
		return "", err
	}
	ctx, span := s.tracer.StartSpan(ctx, "voting.InitializeUser", spanType)
	defer span.End()

	existing, err := s.store.GetUser(ctx, userId)
	if err != nil {
		if _, notFound := err.(user.NotFound); !notFound {
			return "", err
		}
	} else if existing.Initialized {
		return USER_ALREADY_INITIALIZED, nil
	}

	log.Info().Str("user_id", string(userId)).Msg("Initializing user")

	writer := newChunkedWriter(s.store, s.settings.InitChunkSize)
	var seen uint
	err = s.store.Scan(ctx, s.settings.ScanPageSize, func(crossings []crossing.Crossing) error {
		for _, c := range crossings {
			if err := writer.addUnseenBy(ctx, c.Key, userId); err != nil {
				return err
			}
			seen++
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	writer.markInitialized(userId)
	if err := writer.flush(ctx); err != nil {
		return "", err
	}

	log.Info().
		Str("user_id", string(userId)).
		Uint("crossings", seen).
		Uint("batches", writer.commits).
		Msg("User initialized")
	return USER_INITIALIZED, nil
}

func (s *serviceImpl) CastVote(ctx context.Context, userId user.Id, nodeId crossing.NodeId, cast vote.Vote) error {
	if !cast.Valid() {
		return vote.InvalidVote{Value: int(cast)}
	}
	userId, err := user.IdFromString(string(userId))
	if err != nil {
		return err
	}
	key, err := crossing.KeyFromNodeId(string(nodeId))
	if err != nil {
		return err
	}

	ctx, span := s.tracer.StartSpan(ctx, "voting.CastVote", spanType)
	defer span.End()

	// Nothing in here may touch the outside world: the store re-runs it on conflict.
	err = s.store.RunInTransaction(ctx, func(ctx context.Context, tx crossing.Transaction) error {
		prior, err := tx.GetVote(ctx, key, userId)
		if err != nil {
			return err
		}
		target, err := tx.Get(ctx, key)
		if err != nil {
			return err
		}

		ballot := vote.PlanBallot(prior, target.Committed(), cast)

		if ballot.FirstVote {
			if err := tx.IncrementVotesCast(ctx, userId); err != nil {
				return err
			}
		}
		if ballot.FirstVote || !ballot.Increments.IsZero() {
			update := crossing.Update{
				Increments: ballot.Increments,
				Result:     ballot.Result,
			}
			if ballot.FirstVote {
				update.RemoveUnseenBy = &userId
			}
			if err := tx.Update(ctx, key, update); err != nil {
				return err
			}
			if delta := meta.DeltaFor(ballot); !delta.IsZero() {
				if err := tx.UpdateMeta(ctx, delta); err != nil {
					return err
				}
			}
		}
		return tx.SetVote(ctx, key, userId, cast)
	})
	if err != nil {
		return err
	}

	if log.Debug().Enabled() {
		log.Debug().
			Str("user_id", string(userId)).
			Str("node_id", string(nodeId)).
			Str("vote", cast.String()).
			Msg("Vote cast")
	}
	return nil
}

func (s *serviceImpl) NextBatch(ctx context.Context, userId user.Id, quantity uint, lastNodeId *crossing.NodeId) ([]crossing.Crossing, error) {
	if quantity == 0 {
		return nil, InvalidQuantity{Quantity: quantity}
	}
	userId, err := user.IdFromString(string(userId))
	if err != nil {
		return nil, err
	}
	limit := quantity
	if s.settings.MaxBatchQuantity > 0 && limit > s.settings.MaxBatchQuantity {
		limit = s.settings.MaxBatchQuantity
	}

	ctx, span := s.tracer.StartSpan(ctx, "voting.NextBatch", spanType)
	defer span.End()

	var after *crossing.Crossing
	if lastNodeId != nil {
		// Resolve the cursor against its current snapshot, its votes total may have moved since
		// the caller saw it.
		key, err := crossing.KeyFromNodeId(string(*lastNodeId))
		if err != nil {
			return nil, err
		}
		last, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		after = last
	}
	return s.store.ListUnseen(ctx, userId, after, limit)
}

func (s *serviceImpl) ImportCrossings(ctx context.Context, crossings []crossing.NewCrossing) (uint, error) {
	ctx, span := s.tracer.StartSpan(ctx, "voting.ImportCrossings", spanType)
	defer span.End()

	imported, err := s.store.Import(ctx, crossings)
	if err != nil {
		return imported, err
	}
	log.Info().
		Int("submitted", len(crossings)).
		Uint("imported", imported).
		Msg("Imported crossings")
	return imported, nil
}

func (s *serviceImpl) Meta(ctx context.Context) (*meta.Aggregate, error) {
	return s.store.GetMeta(ctx)
}

// chunkedWriter is a bounded write queue: it flushes its Batch every time chunkSize writes are
// pending, independent of how many writes there are in total.
type chunkedWriter struct {
	store     crossing.Store
	chunkSize int
	batch     crossing.Batch
	commits   uint
}

func newChunkedWriter(store crossing.Store, chunkSize uint) *chunkedWriter {
	return &chunkedWriter{
		store:     store,
		chunkSize: int(chunkSize),
		batch:     store.NewBatch(),
	}
}

func (w *chunkedWriter) addUnseenBy(ctx context.Context, key crossing.Key, userId user.Id) error {
	w.batch.AddUnseenBy(key, userId)
	if w.batch.Len() >= w.chunkSize {
		return w.flush(ctx)
	}
	return nil
}

func (w *chunkedWriter) markInitialized(userId user.Id) {
	w.batch.MarkInitialized(userId)
}

func (w *chunkedWriter) flush(ctx context.Context) error {
	if w.batch.Len() == 0 {
		return nil
	}
	if log.Debug().Enabled() {
		log.Debug().Int("writes", w.batch.Len()).Uint("commit", w.commits+1).Msg("Committing batch")
	}
	if err := w.batch.Commit(ctx); err != nil {
		return err
	}
	w.commits++
	w.batch = w.store.NewBatch()
	return nil
}

// <-- Errors

// InvalidQuantity is returned when a feed page of zero crossings is requested
type InvalidQuantity struct {
	Quantity uint
}

func (e InvalidQuantity) Error() string {
	return fmt.Sprintf("Invalid quantity [%d], must be greater than 0", e.Quantity)
}

//     Errors -->
