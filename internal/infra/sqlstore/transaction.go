package sqlstore

import (
	"context"
	"database/sql"

	"github.com/fedus/safe-crossing-cf/internal/domain/crossing"
	"github.com/fedus/safe-crossing-cf/internal/domain/meta"
	"github.com/fedus/safe-crossing-cf/internal/domain/user"
	"github.com/fedus/safe-crossing-cf/internal/domain/vote"
)

type transaction struct {
	tx      *sql.Tx
	dialect *dialect
	wrote   bool
}

func (t *transaction) GetVote(ctx context.Context, key crossing.Key, userId user.Id) (*vote.Vote, error) {
	if t.wrote {
		return nil, crossing.ReadAfterWrite{}
	}
	var stored int
	err := t.tx.QueryRowContext(
		ctx,
		t.dialect.rebind(`SELECT vote FROM votes WHERE crossing_key = ? AND user_id = ?`),
		string(key), string(userId),
	).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, crossing.StoreErr{Underlying: err}
	}
	v, err := vote.FromInt(stored)
	if err != nil {
		return nil, crossing.StoreErr{Underlying: err}
	}
	return &v, nil
}

func (t *transaction) Get(ctx context.Context, key crossing.Key) (*crossing.Crossing, error) {
	if t.wrote {
		return nil, crossing.ReadAfterWrite{}
	}
	return getCrossing(ctx, t.tx, t.dialect, key)
}

func (t *transaction) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	t.wrote = true
	result, err := t.tx.ExecContext(ctx, t.dialect.rebind(query), args...)
	if err != nil {
		return nil, crossing.StoreErr{Underlying: err}
	}
	return result, nil
}

func (t *transaction) IncrementVotesCast(ctx context.Context, userId user.Id) error {
	_, err := t.exec(ctx, `
INSERT INTO users (user_id, total_votes_cast) VALUES (?, 1)
ON CONFLICT (user_id) DO UPDATE SET total_votes_cast = users.total_votes_cast + 1`,
		string(userId))
	return err
}

func (t *transaction) Update(ctx context.Context, key crossing.Key, update crossing.Update) error {
	result, err := t.exec(ctx, `
UPDATE crossings SET
  votes_not_sure = votes_not_sure + ?,
  votes_ok = votes_ok + ?,
  votes_too_close = votes_too_close + ?,
  votes_total = votes_total + ?,
  current_result = ?
WHERE crossing_key = ?`,
		update.Increments.NotSure,
		update.Increments.Ok,
		update.Increments.TooClose,
		update.Increments.Total(),
		update.Result.String(),
		string(key))
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err != nil {
		return crossing.StoreErr{Underlying: err}
	} else if affected == 0 {
		return crossing.NotFound{Key: key}
	}
	if update.RemoveUnseenBy != nil {
		_, err = t.exec(ctx, `DELETE FROM crossing_unseen WHERE user_id = ? AND crossing_key = ?`, string(*update.RemoveUnseenBy), string(key))
	}
	return err
}

func (t *transaction) UpdateMeta(ctx context.Context, delta meta.Delta) error {
	_, err := t.exec(ctx, `
UPDATE meta SET
  crossings_with_enough_votes = crossings_with_enough_votes + ?,
  votes_not_sure = votes_not_sure + ?,
  votes_ok = votes_ok + ?,
  votes_too_close = votes_too_close + ?,
  votes_tie = votes_tie + ?
WHERE id = 1`,
		delta.CrossingsWithEnoughVotes, delta.NotSure, delta.Ok, delta.TooClose, delta.Tie)
	return err
}

func (t *transaction) SetVote(ctx context.Context, key crossing.Key, userId user.Id, v vote.Vote) error {
	_, err := t.exec(ctx, `
INSERT INTO votes (crossing_key, user_id, vote) VALUES (?, ?, ?)
ON CONFLICT (crossing_key, user_id) DO UPDATE SET vote = excluded.vote`,
		string(key), string(userId), int(v))
	return err
}
