package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration is one embedded schema file.
type Migration struct {
	Version  string
	SQL      string
	Checksum string
}

// LoadMigrations returns the embedded migrations in version order.
func LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	migrations := make([]Migration, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		body, err := migrationFiles.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(body)
		migrations = append(migrations, Migration{
			Version:  strings.TrimSuffix(entry.Name(), ".sql"),
			SQL:      string(body),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// Migrate applies every embedded migration not yet recorded in
// schema_migrations. Each migration runs in its own transaction. A recorded
// migration whose checksum no longer matches aborts the run.
func (cp *ConnectionPool) Migrate(ctx context.Context) error {
	migrations, err := LoadMigrations()
	if err != nil {
		return err
	}

	_, err = cp.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("initialize schema_migrations: %w", err)
	}

	for _, migration := range migrations {
		if err := cp.apply(ctx, migration); err != nil {
			return err
		}
	}
	return nil
}

func (cp *ConnectionPool) apply(ctx context.Context, migration Migration) error {
	return cp.WithTransaction(ctx, func(tx *sql.Tx) error {
		var checksum string
		err := tx.QueryRowContext(ctx, "SELECT checksum FROM schema_migrations WHERE version = ?", migration.Version).Scan(&checksum)
		switch {
		case err == nil:
			if checksum != migration.Checksum {
				return fmt.Errorf("migration %s: checksum mismatch", migration.Version)
			}
			return nil
		case err != sql.ErrNoRows:
			return fmt.Errorf("migration %s: read status: %w", migration.Version, err)
		}

		for i, stmt := range splitStatements(migration.SQL) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration %s: statement %d: %w", migration.Version, i+1, err)
			}
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, checksum, applied_at) VALUES (?, ?, ?)",
			migration.Version, migration.Checksum, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("migration %s: record: %w", migration.Version, err)
		}
		return nil
	})
}

// splitStatements splits a script on statement terminators. Migrations do
// not contain triggers, so a bare semicolon always ends a statement.
func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	statements := make([]string, 0, len(parts))
	for _, part := range parts {
		if stmt := strings.TrimSpace(part); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}
