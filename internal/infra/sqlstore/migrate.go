package sqlstore

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fedus/safe-crossing-cf/internal/infra/sqlstore/migrations"
)

const migrationTable = "schema_migrations"

// Migrate applies every embedded migration for the Store's dialect that has not been applied yet
func (s *Store) Migrate(ctx context.Context) (uint, error) {
	return s.applyMigrations(ctx, migrations.FS, s.dialect.migrationRoot)
}

// PendingMigrations lists the embedded migrations for the Store's dialect that have not been applied yet
func (s *Store) PendingMigrations(ctx context.Context) ([]string, error) {
	return s.pendingMigrations(ctx, migrations.FS, s.dialect.migrationRoot)
}

func (s *Store) pendingMigrations(ctx context.Context, migrationFS fs.FS, root string) ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, root)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var sqlFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			sqlFiles = append(sqlFiles, entry.Name())
		}
	}
	sort.Strings(sqlFiles)

	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS `+migrationTable+` (
    name       TEXT PRIMARY KEY,
    applied_at BIGINT NOT NULL
)`); err != nil {
		return nil, fmt.Errorf("ensure migration table: %w", err)
	}

	var pending []string
	for _, file := range sqlFiles {
		var found int
		err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT COUNT(*) FROM `+migrationTable+` WHERE name = ?`), file).Scan(&found)
		if err != nil {
			return nil, fmt.Errorf("check migration %s: %w", file, err)
		}
		if found == 0 {
			pending = append(pending, file)
		}
	}
	return pending, nil
}

func (s *Store) applyMigrations(ctx context.Context, migrationFS fs.FS, root string) (uint, error) {
	pending, err := s.pendingMigrations(ctx, migrationFS, root)
	if err != nil {
		return 0, err
	}

	var applied uint
	for _, file := range pending {
		content, err := fs.ReadFile(migrationFS, path.Join(root, file))
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", file, err)
		}
		upSQL := extractUpMigration(string(content))
		if strings.TrimSpace(upSQL) == "" {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return applied, fmt.Errorf("begin migration transaction %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, upSQL); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(
			ctx,
			s.dialect.rebind(`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?) ON CONFLICT DO NOTHING`),
			file,
			time.Now().UTC().UnixNano()/int64(time.Millisecond),
		); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("commit migration %s: %w", file, err)
		}
		log.Info().Str("migration", file).Str("driver", string(s.dialect.driver)).Msg("Applied migration")
		applied++
	}
	return applied, nil
}

// extractUpMigration returns the SQL in the -- +migrate Up section
func extractUpMigration(content string) string {
	upIdx := strings.Index(content, "-- +migrate Up")
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, "-- +migrate Down")
	if downIdx == -1 {
		return content[upIdx+len("-- +migrate Up"):]
	}
	return content[upIdx+len("-- +migrate Up") : downIdx]
}
