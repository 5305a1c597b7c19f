package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

//go:embed sql/*.sql
var embedded embed.FS

// Schema returns the migrations compiled into the binary.
func Schema() fs.FS {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

// ErrNothingApplied is returned by Down when no migration has been applied.
var ErrNothingApplied = errors.New("no migrations applied")

const (
	defaultMigrationsTable = "schema_migrations"
	defaultSeedsTable      = "schema_seeds"

	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Manager applies the SQL scripts of two file systems, the schema migrations
// and optional seed data, and journals each applied script in its own table.
// Either file system may be nil.
type Manager struct {
	db              *sql.DB
	migrations      fs.FS
	seeds           fs.FS
	migrationsTable string
	seedsTable      string
	now             func() time.Time
}

// Option configures Manager.
type Option func(*Manager)

// WithMigrationsTable overrides the default migrations journal table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.migrationsTable = name
		}
	}
}

// WithSeedsTable overrides the default seeds journal table.
func WithSeedsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.seedsTable = name
		}
	}
}

// NewManager constructs a Manager. Pass Schema() for the built-in migrations.
func NewManager(db *sql.DB, migrations, seeds fs.FS, opts ...Option) *Manager {
	m := &Manager{
		db:              db,
		migrations:      migrations,
		seeds:           seeds,
		migrationsTable: defaultMigrationsTable,
		seedsTable:      defaultSeedsTable,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MigrationStatus reports one migration script. AppliedAt is nil while pending.
type MigrationStatus struct {
	Name      string
	AppliedAt *time.Time
}

// Up applies all pending migrations in name order.
func (m *Manager) Up(ctx context.Context) error {
	return m.applyPending(ctx, m.migrations, upSuffix, m.migrationsTable)
}

// Seed applies seed files not yet recorded.
func (m *Manager) Seed(ctx context.Context) error {
	return m.applyPending(ctx, m.seeds, ".sql", m.seedsTable)
}

// Down rolls back the most recently applied migration. The down script and
// the removal of its journal row commit together.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.ensureJournals(ctx); err != nil {
		return err
	}
	applied, err := m.journal(ctx, m.migrationsTable)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return ErrNothingApplied
	}
	last := applied[len(applied)-1].Name
	scripts, err := listScripts(m.migrations, downSuffix)
	if err != nil {
		return err
	}
	want := strings.TrimSuffix(last, upSuffix) + downSuffix
	i := sort.Search(len(scripts), func(i int) bool { return scripts[i].Name >= want })
	if i == len(scripts) || scripts[i].Name != want {
		return fmt.Errorf("missing down migration for %s", last)
	}
	forget := fmt.Sprintf(`delete from %s where name = $1`, m.migrationsTable)
	if err := m.run(ctx, m.migrations, scripts[i], forget, last); err != nil {
		return fmt.Errorf("rollback migration %s: %w", last, err)
	}
	return nil
}

// Status lists every known migration, applied ones first in the order they
// were applied, then pending ones in name order.
func (m *Manager) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureJournals(ctx); err != nil {
		return nil, err
	}
	applied, err := m.journal(ctx, m.migrationsTable)
	if err != nil {
		return nil, err
	}
	scripts, err := listScripts(m.migrations, upSuffix)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(applied))
	out := make([]MigrationStatus, 0, len(scripts))
	for _, a := range applied {
		seen[a.Name] = true
		out = append(out, a)
	}
	for _, s := range scripts {
		if !seen[s.Name] {
			out = append(out, MigrationStatus{Name: s.Name})
		}
	}
	return out, nil
}

func (m *Manager) applyPending(ctx context.Context, fsys fs.FS, suffix, table string) error {
	if err := m.ensureJournals(ctx); err != nil {
		return err
	}
	applied, err := m.journal(ctx, table)
	if err != nil {
		return err
	}
	done := make(map[string]bool, len(applied))
	for _, a := range applied {
		done[a.Name] = true
	}
	scripts, err := listScripts(fsys, suffix)
	if err != nil {
		return err
	}
	remember := fmt.Sprintf(`insert into %s (name, applied_at) values ($1, $2)`, table)
	for _, s := range scripts {
		if done[s.Name] {
			continue
		}
		if err := m.run(ctx, fsys, s, remember, s.Name, m.now().UTC()); err != nil {
			return fmt.Errorf("apply %s: %w", s.Name, err)
		}
	}
	return nil
}

func (m *Manager) ensureJournals(ctx context.Context) error {
	for _, table := range []string{m.migrationsTable, m.seedsTable} {
		ddl := fmt.Sprintf(`create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		)`, table)
		if _, err := m.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create %s: %w", table, err)
		}
	}
	return nil
}

// run executes the statements of s followed by the journal statement in one
// transaction.
func (m *Manager) run(ctx context.Context, fsys fs.FS, s script, journalSQL string, journalArgs ...any) error {
	raw, err := fs.ReadFile(fsys, s.Path)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, journalSQL, journalArgs...); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *Manager) journal(ctx context.Context, table string) ([]MigrationStatus, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name, applied_at from %s order by applied_at asc, name asc`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MigrationStatus
	for rows.Next() {
		var (
			name string
			at   time.Time
		)
		if err := rows.Scan(&name, &at); err != nil {
			return nil, err
		}
		out = append(out, MigrationStatus{Name: name, AppliedAt: &at})
	}
	return out, rows.Err()
}

type script struct {
	Name string
	Path string
}

// listScripts returns the files of fsys ending in suffix, sorted by base name.
func listScripts(fsys fs.FS, suffix string) ([]script, error) {
	if fsys == nil {
		return nil, nil
	}
	var scripts []script
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), suffix) {
			scripts = append(scripts, script{Name: path.Base(p), Path: p})
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Name < scripts[j].Name })
	return scripts, nil
}

// splitStatements splits SQL on semicolons outside quoted strings and drops
// "--" line comments. Blank statements are skipped.
func splitStatements(src string) []string {
	var (
		stmts   []string
		cur     strings.Builder
		quoted  bool
		comment bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}
	runes := []rune(src)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case comment:
			if r == '\n' {
				comment = false
				cur.WriteRune(r)
			}
		case !quoted && r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			comment = true
			i++
		case r == '\'':
			quoted = !quoted
			cur.WriteRune(r)
		case r == ';' && !quoted:
			cur.WriteRune(r)
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return stmts
}
