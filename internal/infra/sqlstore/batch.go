package sqlstore

import (
	"context"
	"database/sql"

	"github.com/fedus/safe-crossing-cf/internal/domain/crossing"
	"github.com/fedus/safe-crossing-cf/internal/domain/user"
)

type batchWrite struct {
	query string
	args  []interface{}
}

type batch struct {
	store  *Store
	writes []batchWrite
}

func (b *batch) AddUnseenBy(key crossing.Key, userId user.Id) {
	// Only crossings that still exist get the user added
	b.writes = append(b.writes, batchWrite{
		query: `
INSERT INTO crossing_unseen (user_id, crossing_key)
SELECT CAST(? AS TEXT), crossing_key FROM crossings WHERE crossing_key = ?
ON CONFLICT DO NOTHING`,
		args: []interface{}{string(userId), string(key)},
	})
}

func (b *batch) MarkInitialized(userId user.Id) {
	b.writes = append(b.writes, batchWrite{
		query: `
INSERT INTO users (user_id, initialized) VALUES (?, TRUE)
ON CONFLICT (user_id) DO UPDATE SET initialized = TRUE`,
		args: []interface{}{string(userId)},
	})
}

func (b *batch) Len() int {
	return len(b.writes)
}

func (b *batch) Commit(ctx context.Context) error {
	if len(b.writes) > crossing.MaxBatchWrites {
		return crossing.BatchTooLarge{Size: uint(len(b.writes)), Max: crossing.MaxBatchWrites}
	}
	return b.store.withRetries(ctx, nil, func(sqlTx *sql.Tx) error {
		for _, w := range b.writes {
			if _, err := sqlTx.ExecContext(ctx, b.store.dialect.rebind(w.query), w.args...); err != nil {
				return crossing.StoreErr{Underlying: err}
			}
		}
		return nil
	})
}
