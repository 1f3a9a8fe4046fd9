package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // register the pure Go sqlite driver

	"github.com/okian/trialstats/internal/domain/model"
)

const tableName = "telemetry"

// dialect captures what differs between the SQL backends.
type dialect struct {
	name        string
	sqlDriver   string
	seqColumn   string
	columnsSQL  string
	placeholder func(n int) string
	readTx      *sql.TxOptions
}

var (
	sqliteDialect = dialect{
		name:        DriverSQLite,
		sqlDriver:   "sqlite",
		seqColumn:   "seq INTEGER PRIMARY KEY AUTOINCREMENT",
		columnsSQL:  "SELECT name FROM pragma_table_info('" + tableName + "')",
		placeholder: func(int) string { return "?" },
	}
	postgresDialect = dialect{
		name:        DriverPostgres,
		sqlDriver:   "pgx",
		seqColumn:   "seq BIGSERIAL PRIMARY KEY",
		columnsSQL:  "SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = '" + tableName + "'",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		readTx:      &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
	}
)

// sqlOpen is swapped in tests.
var sqlOpen = sql.Open

// SQLStore keeps rows in a single table with one TEXT column per canonical
// field and a monotonically increasing seq column for write order.
type SQLStore struct {
	db        *sql.DB
	dialect   dialect
	insertSQL string
	selectSQL string
}

// NewSQLiteStore opens (or creates) a SQLite database file at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrMissingPath
	}
	clean := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(clean), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	dsn := clean + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"
	s, err := openSQL(ctx, sqliteDialect, dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; sqlite serializes them anyway.
	s.db.SetMaxOpenConns(1)
	return s, nil
}

// NewPostgresStore connects to Postgres through the pgx stdlib driver.
func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, ErrMissingDSN
	}
	return openSQL(ctx, postgresDialect, dsn)
}

func openSQL(ctx context.Context, d dialect, dsn string) (*SQLStore, error) {
	db, err := sqlOpen(d.sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}
	s := &SQLStore{db: db, dialect: d}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.prepareStatements()
	return s, nil
}

func quote(ident string) string { return `"` + ident + `"` }

// migrate creates the table and adds any canonical column it is missing.
func (s *SQLStore) migrate(ctx context.Context) error {
	cols := make([]string, 0, model.FieldCount()+1)
	cols = append(cols, s.dialect.seqColumn)
	for _, f := range model.Fields() {
		cols = append(cols, quote(f)+" TEXT NOT NULL DEFAULT ''")
	}
	ddl := "CREATE TABLE IF NOT EXISTS " + tableName + " (" + strings.Join(cols, ", ") + ")"
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.columnsSQL)
	if err != nil {
		return fmt.Errorf("list columns: %w", err)
	}
	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return fmt.Errorf("list columns: %w", err)
		}
		existing[name] = true
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, f := range model.Fields() {
		if existing[f] {
			continue
		}
		alter := "ALTER TABLE " + tableName + " ADD COLUMN " + quote(f) + " TEXT NOT NULL DEFAULT ''"
		if _, err := s.db.ExecContext(ctx, alter); err != nil {
			return fmt.Errorf("add column %s: %w", f, err)
		}
	}
	return nil
}

func (s *SQLStore) prepareStatements() {
	fields := model.Fields()
	names := make([]string, len(fields))
	marks := make([]string, len(fields))
	for i, f := range fields {
		names[i] = quote(f)
		marks[i] = s.dialect.placeholder(i + 1)
	}
	cols := strings.Join(names, ", ")
	s.insertSQL = "INSERT INTO " + tableName + " (" + cols + ") VALUES (" + strings.Join(marks, ", ") + ")"
	s.selectSQL = "SELECT " + cols + " FROM " + tableName + " ORDER BY seq"
}

func (s *SQLStore) Driver() string { return s.dialect.name }

// Close closes the database handle.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) Append(ctx context.Context, row model.Row) error {
	args := make([]any, len(row))
	for i, v := range row {
		args[i] = v
	}
	if _, err := s.db.ExecContext(ctx, s.insertSQL, args...); err != nil {
		return fmt.Errorf("insert row: %w", err)
	}
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLStore) ReadAll(ctx context.Context) (model.Table, error) {
	if s.dialect.readTx == nil {
		return s.readAll(ctx, s.db)
	}

	tx, err := s.db.BeginTx(ctx, s.dialect.readTx)
	if err != nil {
		return model.Table{}, fmt.Errorf("begin read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return s.readAll(ctx, tx)
}

func (s *SQLStore) readAll(ctx context.Context, q queryer) (model.Table, error) {
	rows, err := q.QueryContext(ctx, s.selectSQL)
	if err != nil {
		return model.Table{}, fmt.Errorf("select rows: %w", err)
	}
	defer rows.Close()

	n := model.FieldCount()
	var out [][]string
	for rows.Next() {
		rec := make([]string, n)
		dest := make([]any, n)
		for i := range rec {
			dest[i] = &rec[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return model.Table{}, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return model.Table{}, fmt.Errorf("select rows: %w", err)
	}
	if len(out) == 0 {
		return model.Table{}, ErrEmpty
	}
	return model.Table{Header: model.Fields(), Rows: out}, nil
}
