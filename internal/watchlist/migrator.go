package watchlist

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// watchlistMigrationLockID is the pg_advisory_lock key Migrator holds for
// the duration of Up/Down. The teacher's migrator (internal/persistence)
// runs migrations against a shared session with no locking at all, which
// is fine for a single deploy but races if two liquidator replicas start
// against the same database at once — both would attempt the same
// CREATE TABLE concurrently. Session-level advisory locking, grounded in
// the sibling archon-research-stl repo's own use of
// pg_advisory_xact_lock for serializing concurrent writers
// (internal/adapters/outbound/postgres/blockstate_repository.go),
// serializes Migrator runs instead.
const watchlistMigrationLockID = 0x574c4b31 // "WLK1"

// Migrator runs SQL migration files in order, compatible with golang-migrate
// file naming: {version}_{name}.up.sql / .down.sql. Unlike the teacher's
// persistence.Migrator, which tracks applied versions in the same
// public.schema_migrations table its own event-log/snapshot migrations
// live under, this Migrator tracks its own applied versions in
// watchlist.schema_migrations — the watchlist package owns its schema end
// to end, including the bookkeeping table, so it never collides with a
// migration tracker any other package/database might run.
type Migrator struct {
	db            *sql.DB
	migrationsDir string
	log           zerolog.Logger
}

func NewMigrator(db *sql.DB, migrationsDir string, log zerolog.Logger) *Migrator {
	return &Migrator{db: db, migrationsDir: migrationsDir, log: log}
}

// lock checks out a dedicated connection and holds a session-level
// Postgres advisory lock on it for the caller's duration. pg_advisory_lock
// is tied to the session that acquired it, so every subsequent statement
// in Up/Down runs over the same *sql.Conn rather than the pooled *sql.DB.
func (m *Migrator) lock(ctx context.Context) (*sql.Conn, func(), error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("checkout connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, int64(watchlistMigrationLockID)); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("pg_advisory_lock: %w", err)
	}
	unlock := func() {
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, int64(watchlistMigrationLockID)); err != nil {
			m.log.Warn().Err(err).Msg("pg_advisory_unlock failed")
		}
		conn.Close()
	}
	return conn, unlock, nil
}

// Up applies all pending up-migrations in order, holding the migration
// advisory lock for the duration so concurrent Migrator runs serialize
// instead of racing on the same schema changes.
func (m *Migrator) Up(ctx context.Context) error {
	conn, unlock, err := m.lock(ctx)
	if err != nil {
		return fmt.Errorf("watchlist: %w", err)
	}
	defer unlock()

	if err := m.ensureMigrationTable(ctx, conn); err != nil {
		return fmt.Errorf("watchlist: ensure migration table: %w", err)
	}
	applied, err := m.appliedVersions(ctx, conn)
	if err != nil {
		return fmt.Errorf("watchlist: applied versions: %w", err)
	}
	files, err := m.listMigrationFiles(".up.sql")
	if err != nil {
		return fmt.Errorf("watchlist: list migrations: %w", err)
	}

	for _, f := range files {
		version := extractVersion(f)
		if applied[version] {
			continue
		}
		m.log.Info().Str("file", f).Msg("applying migration")
		content, err := os.ReadFile(filepath.Join(m.migrationsDir, f))
		if err != nil {
			return fmt.Errorf("watchlist: read migration %s: %w", f, err)
		}
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("watchlist: begin tx for %s: %w", f, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("watchlist: exec migration %s: %w", f, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO watchlist.schema_migrations (version, filename) VALUES ($1, $2)`, version, f,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("watchlist: record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("watchlist: commit migration %s: %w", f, err)
		}
		m.log.Info().Str("file", f).Msg("applied migration")
	}
	return nil
}

// Down rolls back the most recently applied migration, holding the same
// advisory lock Up does.
func (m *Migrator) Down(ctx context.Context) error {
	conn, unlock, err := m.lock(ctx)
	if err != nil {
		return fmt.Errorf("watchlist: %w", err)
	}
	defer unlock()

	if err := m.ensureMigrationTable(ctx, conn); err != nil {
		return err
	}
	var version, filename string
	err = conn.QueryRowContext(ctx,
		`SELECT version, filename FROM watchlist.schema_migrations ORDER BY version DESC LIMIT 1`,
	).Scan(&version, &filename)
	if err == sql.ErrNoRows {
		m.log.Info().Msg("no migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("watchlist: latest migration: %w", err)
	}

	downFile := strings.Replace(filename, ".up.sql", ".down.sql", 1)
	content, err := os.ReadFile(filepath.Join(m.migrationsDir, downFile))
	if err != nil {
		return fmt.Errorf("watchlist: read down migration %s: %w", downFile, err)
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		tx.Rollback()
		return fmt.Errorf("watchlist: exec down migration %s: %w", downFile, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM watchlist.schema_migrations WHERE version = $1`, version); err != nil {
		tx.Rollback()
		return fmt.Errorf("watchlist: remove migration record %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	m.log.Info().Str("file", downFile).Msg("rolled back migration")
	return nil
}

func (m *Migrator) ensureMigrationTable(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE SCHEMA IF NOT EXISTS watchlist;
		CREATE TABLE IF NOT EXISTS watchlist.schema_migrations (
			version    TEXT PRIMARY KEY,
			filename   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (m *Migrator) appliedVersions(ctx context.Context, conn *sql.Conn) (map[string]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM watchlist.schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (m *Migrator) listMigrationFiles(suffix string) ([]string, error) {
	entries, err := os.ReadDir(m.migrationsDir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// extractVersion returns the numeric prefix from a migration filename,
// e.g. "000001_watchlist_addresses.up.sql" -> "000001".
func extractVersion(filename string) string {
	parts := strings.SplitN(filename, "_", 2)
	if len(parts) > 0 {
		return parts[0]
	}
	return filename
}
