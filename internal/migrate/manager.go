package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsTable = "schema_migrations"

// Manager applies the embedded schema migrations in lexical order, recording
// each applied file so reruns are no-ops.
type Manager struct {
	db *sql.DB
}

func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

// Up applies every pending migration inside one transaction per file.
func (m *Manager) Up(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, fmt.Sprintf(
		`create table if not exists %s (name text primary key, applied_at timestamptz not null default now())`,
		migrationsTable)); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		applied, err := m.applied(ctx, name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := m.apply(ctx, name); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

func (m *Manager) applied(ctx context.Context, name string) (bool, error) {
	var count int
	err := m.db.QueryRowContext(ctx, fmt.Sprintf(
		`select count(*) from %s where name=$1`, migrationsTable), name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", name, err)
	}
	return count > 0, nil
}

func (m *Manager) apply(ctx context.Context, name string) error {
	body, err := migrations.ReadFile("migrations/" + name)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`insert into %s(name) values($1)`, migrationsTable), name); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
