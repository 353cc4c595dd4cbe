package crossing

import (
	"context"
	"fmt"

	"github.com/fedus/safe-crossing-cf/internal/domain/meta"
	"github.com/fedus/safe-crossing-cf/internal/domain/user"
	"github.com/fedus/safe-crossing-cf/internal/domain/vote"
)

// MaxBatchWrites is the hard ceiling on the number of writes a Batch may carry
const MaxBatchWrites = 500

// Store is the Entity Store Adapter: the only shared, durable state and the only
// concurrency control primitive available to the voting operations.
type Store interface {
	// RunInTransaction runs f inside an atomic transaction.
	//
	// All reads must happen before any write. On conflict with a concurrent transaction, f is
	// run again from scratch, so f must not have side effects outside of tx. Returns
	// TransactionConflict if all attempts conflicted.
	RunInTransaction(ctx context.Context, f func(ctx context.Context, tx Transaction) error) error

	// NewBatch returns an empty, unconditional write Batch
	NewBatch() Batch

	// GetUser returns user.NotFound if the user was never written
	GetUser(ctx context.Context, id user.Id) (*user.User, error)

	// Get returns NotFound if there is no crossing for the key
	Get(ctx context.Context, key Key) (*Crossing, error)

	// Scan walks all crossings in Key order, pageSize at a time
	Scan(ctx context.Context, pageSize uint, f func(crossings []Crossing) error) error

	// ListUnseen returns up to limit crossings whose unseenBy set contains userId, ordered by
	// ascending votes total then Key, starting strictly after the given crossing if non-nil.
	ListUnseen(ctx context.Context, userId user.Id, after *Crossing, limit uint) ([]Crossing, error)

	// GetMeta returns the meta Aggregate, zero-valued if it was never written
	GetMeta(ctx context.Context) (*meta.Aggregate, error)

	// ReadSnapshot runs f against a read-only view in which every read sees the same point in time.
	// f must not call back into the Store.
	ReadSnapshot(ctx context.Context, f func(ctx context.Context, snapshot Snapshot) error) error

	// Import inserts the crossings that do not exist yet, with every initialized user in their
	// unseenBy set. Returns how many were inserted.
	Import(ctx context.Context, crossings []NewCrossing) (uint, error)
}

// Snapshot is the consistent read-only view handed out by Store.ReadSnapshot
type Snapshot interface {
	// Scan walks all crossings in Key order, pageSize at a time
	Scan(ctx context.Context, pageSize uint, f func(crossings []Crossing) error) error

	// GetMeta returns the meta Aggregate, zero-valued if it was never written
	GetMeta(ctx context.Context) (*meta.Aggregate, error)
}

// Transaction is a read-then-write unit of work handed out by Store.RunInTransaction
type Transaction interface {
	// GetVote returns the user's vote on the crossing, nil if there is none
	GetVote(ctx context.Context, key Key, userId user.Id) (*vote.Vote, error)

	// Get reads a crossing, NotFound if it does not exist
	Get(ctx context.Context, key Key) (*Crossing, error)

	// IncrementVotesCast bumps a user's totalVotesCast, creating the user if needed
	IncrementVotesCast(ctx context.Context, userId user.Id) error

	// Update applies an Update to an existing crossing
	Update(ctx context.Context, key Key, update Update) error

	// UpdateMeta atomically adds the delta to the meta Aggregate
	UpdateMeta(ctx context.Context, delta meta.Delta) error

	// SetVote upserts the vote record for (crossing, user)
	SetVote(ctx context.Context, key Key, userId user.Id, v vote.Vote) error
}

// Batch collects unconditional writes that are committed together.
//
// Every write is idempotent, so a Batch can be replayed safely.
type Batch interface {
	// AddUnseenBy set-unions the user into the crossing's unseenBy set
	AddUnseenBy(key Key, userId user.Id)

	// MarkInitialized merges initialized=true into the user, creating it if needed
	MarkInitialized(userId user.Id)

	// Len is the number of writes pending
	Len() int

	// Commit sends the writes. Returns BatchTooLarge without writing if Len() > MaxBatchWrites
	Commit(ctx context.Context) error
}

// <-- Errors

// StoreErr wraps anything that went wrong talking to the underlying storage engine
type StoreErr struct {
	Underlying error
}

func (e StoreErr) Error() string {
	return fmt.Sprintf("Error from store: %v", e.Underlying)
}

func (e StoreErr) Unwrap() error {
	return e.Underlying
}

// TransactionConflict is returned when a transaction kept conflicting until retries ran out
type TransactionConflict struct {
	Attempts uint
}

func (e TransactionConflict) Error() string {
	return fmt.Sprintf("Transaction aborted after [%d] conflicting attempts", e.Attempts)
}

type BatchTooLarge struct {
	Size uint
	Max  uint
}

func (e BatchTooLarge) Error() string {
	return fmt.Sprintf("Batch of [%d] writes exceeds the limit of [%d]", e.Size, e.Max)
}

// ReadAfterWrite is returned when a Transaction is read from after it was written to
type ReadAfterWrite struct{}

func (e ReadAfterWrite) Error() string {
	return "Transactions require all reads to be executed before all writes"
}

//     Errors -->
