package migrator

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"go.hackfix.me/switchboard/db/types"
)

// MigrationType is the direction of a migration.
type MigrationType string

// Migration directions.
const (
	MigrationUp   MigrationType = "up"
	MigrationDown MigrationType = "down"
)

// Migration is a single schema change, with the SQL to apply and revert it.
type Migration struct {
	ID   int
	Name string
	Up   string
	Down string
}

func (m *Migration) String() string {
	return fmt.Sprintf("%04d-%s", m.ID, m.Name)
}

var migrationFileRx = regexp.MustCompile(`^(\d+)-([\w-]+)\.(up|down)\.sql$`)

// LoadMigrations reads all migration files from the root of fsys and returns
// them sorted by ID. Every migration must have an up file; down files are
// optional.
func LoadMigrations(fsys fs.FS) ([]*Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed reading migrations directory: %w", err)
	}

	byID := map[int]*Migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationFileRx.FindStringSubmatch(entry.Name())
		if match == nil {
			return nil, fmt.Errorf("invalid migration file name '%s'", entry.Name())
		}

		id, err := strconv.Atoi(match[1])
		if err != nil {
			return nil, fmt.Errorf("invalid migration ID in '%s': %w", entry.Name(), err)
		}

		m, ok := byID[id]
		if !ok {
			m = &Migration{ID: id, Name: match[2]}
			byID[id] = m
		} else if m.Name != match[2] {
			return nil, fmt.Errorf("conflicting names for migration %d: '%s' and '%s'",
				id, m.Name, match[2])
		}

		data, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed reading migration file '%s': %w", entry.Name(), err)
		}

		switch MigrationType(match[3]) {
		case MigrationUp:
			m.Up = string(data)
		case MigrationDown:
			m.Down = string(data)
		}
	}

	migrations := make([]*Migration, 0, len(byID))
	for _, m := range byID {
		if strings.TrimSpace(m.Up) == "" {
			return nil, fmt.Errorf("migration %s has no up script", m)
		}
		migrations = append(migrations, m)
	}
	slices.SortFunc(migrations, func(a, b *Migration) int { return a.ID - b.ID })

	return migrations, nil
}

// RunMigrations applies or reverts migrations up to the target migration ID,
// or all of them if to is "all". Already applied migrations are skipped when
// migrating up, and unapplied ones are skipped when migrating down. Each
// migration runs in its own transaction.
func RunMigrations(
	ctx context.Context, d types.Querier, migrations []*Migration,
	dir MigrationType, to string, logger *slog.Logger,
) error {
	if err := createHistoryTable(ctx, d); err != nil {
		return err
	}

	target := -1
	if to != "all" {
		var err error
		if target, err = strconv.Atoi(to); err != nil {
			return fmt.Errorf("invalid target migration '%s': %w", to, err)
		}
	}

	applied, err := appliedMigrations(ctx, d)
	if err != nil {
		return err
	}

	plan := make([]*Migration, 0, len(migrations))
	switch dir {
	case MigrationUp:
		for _, m := range migrations {
			if target != -1 && m.ID > target {
				break
			}
			if _, ok := applied[m.ID]; !ok {
				plan = append(plan, m)
			}
		}
	case MigrationDown:
		for _, m := range slices.Backward(migrations) {
			if m.ID <= target {
				break
			}
			if _, ok := applied[m.ID]; ok {
				plan = append(plan, m)
			}
		}
	default:
		return fmt.Errorf("invalid migration direction '%s'", dir)
	}

	for _, m := range plan {
		if err = runMigration(ctx, d, m, dir); err != nil {
			return err
		}
		logger.Debug("applied migration", "migration", m.String(), "direction", dir)
	}

	return nil
}

func runMigration(ctx context.Context, d types.Querier, m *Migration, dir MigrationType) error {
	script := m.Up
	if dir == MigrationDown {
		script = m.Down
		if strings.TrimSpace(script) == "" {
			return fmt.Errorf("migration %s can't be reverted", m)
		}
	}

	return d.Tx(ctx, func(tx types.Querier) error {
		if _, err := tx.ExecContext(ctx, script); err != nil {
			return fmt.Errorf("failed running migration %s %s: %w", m, dir, err)
		}

		var err error
		if dir == MigrationUp {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO _migrations (id, name, applied_at) VALUES (?, ?, ?)`,
				m.ID, m.Name, tx.TimeNow().UTC().Unix())
		} else {
			_, err = tx.ExecContext(ctx, `DELETE FROM _migrations WHERE id = ?`, m.ID)
		}
		if err != nil {
			return fmt.Errorf("failed recording migration %s: %w", m, err)
		}

		return nil
	})
}

func createHistoryTable(ctx context.Context, d types.Querier) error {
	_, err := d.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS _migrations (
		id         INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed creating migrations table: %w", err)
	}

	return nil
}

func appliedMigrations(ctx context.Context, d types.Querier) (_ map[int]struct{}, rerr error) {
	rows, err := d.QueryContext(ctx, `SELECT id FROM _migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed loading migration history: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			rerr = fmt.Errorf("failed closing migration rows: %w", err)
		}
	}()

	applied := map[int]struct{}{}
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed scanning migration ID: %w", err)
		}
		applied[id] = struct{}{}
	}

	return applied, rows.Err()
}
