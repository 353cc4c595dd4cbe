package sqlstore

import (
	"database/sql"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/lib/pq"
	"go.elastic.co/apm/module/apmsql"
	_ "go.elastic.co/apm/module/apmsql/pq"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/fedus/safe-crossing-cf/internal/config"
)

// dialect holds what differs between the supported SQL engines
type dialect struct {
	driver config.StorageDriver
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
	// migrationRoot is the directory inside migrations.FS
	migrationRoot string
	txOptions     *sql.TxOptions
	// snapshotTxOptions give every read in the transaction the same point in time.
	// sqlite leaves it nil: _txlock=immediate on the only connection already serializes everything.
	snapshotTxOptions *sql.TxOptions
	// isConflict is true for errors that mean the transaction lost a race and may be retried
	isConflict func(err error) bool
	// dsn turns the configured DSN into what the driver expects
	dsn func(configured string) string
}

var sqliteDialect = dialect{
	driver:        config.SqliteDriver,
	migrationRoot: "sqlite",
	isConflict:    isSqliteBusy,
	dsn: func(configured string) string {
		path := configured
		if path != ":memory:" {
			path = filepath.Clean(path)
		}
		return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	},
}

var postgresDialect = dialect{
	driver:            config.PostgresDriver,
	numbered:          true,
	migrationRoot:     "postgres",
	txOptions:         &sql.TxOptions{Isolation: sql.LevelSerializable},
	snapshotTxOptions: &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
	isConflict:        isPostgresSerializationFailure,
	dsn: func(configured string) string {
		return configured
	},
}

func dialectFor(driver config.StorageDriver) (*dialect, error) {
	switch driver {
	case config.SqliteDriver:
		return &sqliteDialect, nil
	case config.PostgresDriver:
		return &postgresDialect, nil
	default:
		return nil, UnsupportedDriver{Driver: driver}
	}
}

var registerSqlite sync.Once

// open returns a *sql.DB whose driver is wrapped for APM tracing
func (d *dialect) open(configured string) (*sql.DB, error) {
	if d.driver == config.SqliteDriver {
		// The apmsql pq package registers itself; modernc's driver has no such companion
		registerSqlite.Do(func() {
			apmsql.Register(string(config.SqliteDriver), &msqlite.Driver{})
		})
	}
	return apmsql.Open(string(d.driver), d.dsn(configured))
}

// rebind rewrites ? placeholders for dialects that number them
func (d *dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isSqliteBusy(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return true
		}
	}
	return false
}

func isPostgresSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return true
		}
	}
	return false
}
