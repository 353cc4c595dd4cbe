// sqlstore is a crossing.Store backed by a SQL database, either SQLite (modernc) or PostgreSQL (lib/pq).
//
// Vote transactions run as SERIALIZABLE database transactions on PostgreSQL, and behind SQLite's single
// writer lock otherwise; in both cases a transaction that loses a race is retried from scratch.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fedus/safe-crossing-cf/internal/config"
	"github.com/fedus/safe-crossing-cf/internal/domain/crossing"
	"github.com/fedus/safe-crossing-cf/internal/domain/meta"
	"github.com/fedus/safe-crossing-cf/internal/domain/user"
	"github.com/fedus/safe-crossing-cf/internal/domain/vote"
)

const (
	DefaultTransactionAttempts uint = 5

	retryBackoff = 5 * time.Millisecond

	crossingColumns = `c.crossing_key, c.node_id, c.latitude, c.longitude, c.votes_not_sure, c.votes_ok, c.votes_too_close, c.votes_total, c.current_result`
)

type Store struct {
	db       *sql.DB
	dialect  *dialect
	attempts uint
}

// Open connects to the configured database. Call Migrate before using the Store on a fresh database.
func Open(settings config.Storage) (*Store, error) {
	d, err := dialectFor(settings.Driver)
	if err != nil {
		return nil, err
	}
	if settings.DSN == "" {
		return nil, MissingDSN{Driver: settings.Driver}
	}
	db, err := d.open(settings.DSN)
	if err != nil {
		return nil, crossing.StoreErr{Underlying: fmt.Errorf("open %s db: %w", settings.Driver, err)}
	}
	switch {
	case d.driver == config.SqliteDriver:
		// SQLite has a single writer; one connection turns lock contention into queueing
		db.SetMaxOpenConns(1)
	case settings.MaxOpenConns > 0:
		db.SetMaxOpenConns(settings.MaxOpenConns)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, crossing.StoreErr{Underlying: fmt.Errorf("ping %s db: %w", settings.Driver, err)}
	}

	attempts := settings.TransactionAttempts
	if attempts == 0 {
		attempts = DefaultTransactionAttempts
	}
	return &Store{db: db, dialect: d, attempts: attempts}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) RunInTransaction(ctx context.Context, f func(ctx context.Context, tx crossing.Transaction) error) error {
	return s.withRetries(ctx, s.dialect.txOptions, func(sqlTx *sql.Tx) error {
		return f(ctx, &transaction{tx: sqlTx, dialect: s.dialect})
	})
}

// withRetries runs f in a database transaction, starting over whenever the dialect reports a conflict
func (s *Store) withRetries(ctx context.Context, opts *sql.TxOptions, f func(sqlTx *sql.Tx) error) error {
	for attempt := uint(1); attempt <= s.attempts; attempt++ {
		err := s.attempt(ctx, opts, f)
		if err == nil {
			return nil
		}
		if !s.dialect.isConflict(err) {
			return err
		}
		if log.Debug().Enabled() {
			log.Debug().Err(err).Uint("attempt", attempt).Msg("Transaction conflicted, retrying")
		}
		select {
		case <-ctx.Done():
			return crossing.StoreErr{Underlying: ctx.Err()}
		case <-time.After(retryBackoff * time.Duration(attempt)):
		}
	}
	return crossing.TransactionConflict{Attempts: s.attempts}
}

func (s *Store) attempt(ctx context.Context, opts *sql.TxOptions, f func(sqlTx *sql.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return crossing.StoreErr{Underlying: err}
	}
	defer sqlTx.Rollback()
	if err := f(sqlTx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return crossing.StoreErr{Underlying: err}
	}
	return nil
}

func (s *Store) NewBatch() crossing.Batch {
	return &batch{store: s}
}

func (s *Store) GetUser(ctx context.Context, id user.Id) (*user.User, error) {
	u := user.User{ID: id}
	err := s.db.QueryRowContext(
		ctx,
		s.dialect.rebind(`SELECT initialized, total_votes_cast FROM users WHERE user_id = ?`),
		string(id),
	).Scan(&u.Initialized, &u.TotalVotesCast)
	switch {
	case err == sql.ErrNoRows:
		return nil, user.NotFound{ID: id}
	case err != nil:
		return nil, crossing.StoreErr{Underlying: err}
	}
	return &u, nil
}

func (s *Store) Get(ctx context.Context, key crossing.Key) (*crossing.Crossing, error) {
	return getCrossing(ctx, s.db, s.dialect, key)
}

func (s *Store) Scan(ctx context.Context, pageSize uint, f func(crossings []crossing.Crossing) error) error {
	return scanCrossings(ctx, s.db, s.dialect, pageSize, f)
}

func scanCrossings(ctx context.Context, q querier, d *dialect, pageSize uint, f func(crossings []crossing.Crossing) error) error {
	if pageSize == 0 {
		pageSize = 1
	}
	query := d.rebind(`SELECT ` + crossingColumns + ` FROM crossings c WHERE c.crossing_key > ? ORDER BY c.crossing_key LIMIT ?`)
	after := ""
	for {
		// The page is read in full before f runs, so f may use the connection itself
		page, err := queryCrossings(ctx, q, query, after, pageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := f(page); err != nil {
			return err
		}
		if uint(len(page)) < pageSize {
			return nil
		}
		after = string(page[len(page)-1].Key)
	}
}

func (s *Store) ListUnseen(ctx context.Context, userId user.Id, after *crossing.Crossing, limit uint) ([]crossing.Crossing, error) {
	if after == nil {
		return queryCrossings(ctx, s.db, s.dialect.rebind(`
SELECT `+crossingColumns+`
FROM crossings c
JOIN crossing_unseen u ON u.crossing_key = c.crossing_key
WHERE u.user_id = ?
ORDER BY c.votes_total, c.crossing_key
LIMIT ?`),
			string(userId), limit)
	}
	return queryCrossings(ctx, s.db, s.dialect.rebind(`
SELECT `+crossingColumns+`
FROM crossings c
JOIN crossing_unseen u ON u.crossing_key = c.crossing_key
WHERE u.user_id = ?
  AND (c.votes_total > ? OR (c.votes_total = ? AND c.crossing_key > ?))
ORDER BY c.votes_total, c.crossing_key
LIMIT ?`),
		string(userId), after.VotesTotal, after.VotesTotal, string(after.Key), limit)
}

func (s *Store) GetMeta(ctx context.Context) (*meta.Aggregate, error) {
	return getMeta(ctx, s.db)
}

func getMeta(ctx context.Context, q querier) (*meta.Aggregate, error) {
	var agg meta.Aggregate
	err := q.QueryRowContext(
		ctx,
		`SELECT crossings_with_enough_votes, votes_not_sure, votes_ok, votes_too_close, votes_tie FROM meta WHERE id = 1`,
	).Scan(&agg.CrossingsWithEnoughVotes, &agg.NotSure, &agg.Ok, &agg.TooClose, &agg.Tie)
	switch {
	case err == sql.ErrNoRows:
		return &agg, nil
	case err != nil:
		return nil, crossing.StoreErr{Underlying: err}
	}
	return &agg, nil
}

// ReadSnapshot runs f inside a single read transaction. It is not retried: f may have side effects.
func (s *Store) ReadSnapshot(ctx context.Context, f func(ctx context.Context, snapshot crossing.Snapshot) error) error {
	return s.attempt(ctx, s.dialect.snapshotTxOptions, func(sqlTx *sql.Tx) error {
		return f(ctx, &snapshot{tx: sqlTx, dialect: s.dialect})
	})
}

type snapshot struct {
	tx      *sql.Tx
	dialect *dialect
}

func (v *snapshot) Scan(ctx context.Context, pageSize uint, f func(crossings []crossing.Crossing) error) error {
	return scanCrossings(ctx, v.tx, v.dialect, pageSize, f)
}

func (v *snapshot) GetMeta(ctx context.Context) (*meta.Aggregate, error) {
	return getMeta(ctx, v.tx)
}

func (s *Store) Import(ctx context.Context, crossings []crossing.NewCrossing) (uint, error) {
	insertCrossing := s.dialect.rebind(`
INSERT INTO crossings (crossing_key, node_id, latitude, longitude)
VALUES (?, ?, ?, ?)
ON CONFLICT (crossing_key) DO NOTHING`)
	insertUnseen := s.dialect.rebind(`
INSERT INTO crossing_unseen (user_id, crossing_key)
SELECT user_id, CAST(? AS TEXT) FROM users WHERE initialized = TRUE
ON CONFLICT DO NOTHING`)

	var imported uint
	err := s.withRetries(ctx, nil, func(sqlTx *sql.Tx) error {
		imported = 0
		for _, newCrossing := range crossings {
			key := newCrossing.NodeId.Key()
			var lat, lon sql.NullFloat64
			if newCrossing.Location != nil {
				lat = sql.NullFloat64{Float64: newCrossing.Location.Latitude, Valid: true}
				lon = sql.NullFloat64{Float64: newCrossing.Location.Longitude, Valid: true}
			}
			result, err := sqlTx.ExecContext(ctx, insertCrossing, string(key), string(newCrossing.NodeId), lat, lon)
			if err != nil {
				return crossing.StoreErr{Underlying: err}
			}
			inserted, err := result.RowsAffected()
			if err != nil {
				return crossing.StoreErr{Underlying: err}
			}
			if inserted == 0 {
				continue
			}
			if _, err := sqlTx.ExecContext(ctx, insertUnseen, string(key)); err != nil {
				return crossing.StoreErr{Underlying: err}
			}
			imported++
		}
		return nil
	})
	return imported, err
}

// UnseenBy returns the users that have yet to vote on a crossing, for inspection in tests and tooling
func (s *Store) UnseenBy(ctx context.Context, key crossing.Key) ([]user.Id, error) {
	rows, err := s.db.QueryContext(
		ctx,
		s.dialect.rebind(`SELECT user_id FROM crossing_unseen WHERE crossing_key = ? ORDER BY user_id`),
		string(key),
	)
	if err != nil {
		return nil, crossing.StoreErr{Underlying: err}
	}
	defer rows.Close()
	ids := make([]user.Id, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, crossing.StoreErr{Underlying: err}
		}
		ids = append(ids, user.Id(id))
	}
	if err := rows.Err(); err != nil {
		return nil, crossing.StoreErr{Underlying: err}
	}
	return ids, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func getCrossing(ctx context.Context, q querier, d *dialect, key crossing.Key) (*crossing.Crossing, error) {
	row := q.QueryRowContext(ctx, d.rebind(`SELECT `+crossingColumns+` FROM crossings c WHERE c.crossing_key = ?`), string(key))
	c, err := scanCrossing(row)
	switch {
	case err == sql.ErrNoRows:
		return nil, crossing.NotFound{Key: key}
	case err != nil:
		return nil, crossing.StoreErr{Underlying: err}
	}
	return c, nil
}

func queryCrossings(ctx context.Context, q querier, query string, args ...interface{}) ([]crossing.Crossing, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, crossing.StoreErr{Underlying: err}
	}
	defer rows.Close()
	crossings := make([]crossing.Crossing, 0)
	for rows.Next() {
		c, err := scanCrossing(rows)
		if err != nil {
			return nil, crossing.StoreErr{Underlying: err}
		}
		crossings = append(crossings, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, crossing.StoreErr{Underlying: err}
	}
	return crossings, nil
}

func scanCrossing(row rowScanner) (*crossing.Crossing, error) {
	var (
		c        crossing.Crossing
		key      string
		nodeId   string
		lat, lon sql.NullFloat64
		result   sql.NullString
	)
	if err := row.Scan(&key, &nodeId, &lat, &lon, &c.Tallies.NotSure, &c.Tallies.Ok, &c.Tallies.TooClose, &c.VotesTotal, &result); err != nil {
		return nil, err
	}
	c.Key = crossing.Key(key)
	c.NodeId = crossing.NodeId(nodeId)
	if lat.Valid && lon.Valid {
		c.Location = &crossing.Location{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	if result.Valid {
		r, err := vote.ResultFromString(result.String)
		if err != nil {
			return nil, err
		}
		c.CurrentResult = &r
	}
	return &c, nil
}

var _ crossing.Store = (*Store)(nil)
