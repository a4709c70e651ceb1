package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/replisync/internal/db"
	"github.com/openmined/replisync/internal/replica"
)

const checkpointSchema = `
CREATE TABLE IF NOT EXISTS sync_state (
    entity TEXT PRIMARY KEY,
    last_sync_at TEXT NOT NULL -- TimeLayout, UTC
);
`

const tableSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    quantity INTEGER NOT NULL,
    updated_at TEXT NOT NULL,
    deleted_at TEXT,
    version INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_updated ON %[1]s(updated_at);
CREATE INDEX IF NOT EXISTS idx_%[1]s_deleted ON %[1]s(deleted_at);
`

// offsetSlack exceeds any RFC3339 UTC offset. A row changed after since has a
// wall-clock text later than since minus this, whatever offset it was written with.
const offsetSlack = 25 * time.Hour

var (
	ErrInvalidTable = errors.New("invalid table name")
	tableNameRe     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

// ValidTableName reports whether name can be interpolated into SQL as a table identifier.
func ValidTableName(name string) bool {
	return tableNameRe.MatchString(name)
}

// dbRecord is used for scanning rows where timestamps are stored as TEXT.
type dbRecord struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	Quantity  int64          `db:"quantity"`
	UpdatedAt string         `db:"updated_at"`
	DeletedAt sql.NullString `db:"deleted_at"`
	Version   int64          `db:"version"`
}

func (d *dbRecord) toRecord() (*replica.Record, error) {
	updated, err := replica.ParseTime(d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("record %s updated_at: %w", d.ID, err)
	}
	r := &replica.Record{
		ID:        d.ID,
		Name:      d.Name,
		Quantity:  d.Quantity,
		UpdatedAt: updated,
		Version:   d.Version,
	}
	if d.DeletedAt.Valid {
		deleted, err := replica.ParseTime(d.DeletedAt.String)
		if err != nil {
			return nil, fmt.Errorf("record %s deleted_at: %w", d.ID, err)
		}
		r.DeletedAt = &deleted
	}
	return r, nil
}

func fromRecord(r *replica.Record) dbRecord {
	d := dbRecord{
		ID:        r.ID,
		Name:      r.Name,
		Quantity:  r.Quantity,
		UpdatedAt: replica.FormatTime(r.UpdatedAt),
		Version:   r.Version,
	}
	if r.DeletedAt != nil {
		d.DeletedAt = sql.NullString{String: replica.FormatTime(*r.DeletedAt), Valid: true}
	}
	return d
}

// SqliteStore keeps replica tables and sync checkpoints in one sqlite database.
// It implements both replica.Store and replica.CheckpointStore.
type SqliteStore struct {
	db   *sqlx.DB
	path string
}

var (
	_ replica.Store           = (*SqliteStore)(nil)
	_ replica.CheckpointStore = (*SqliteStore)(nil)
)

// Open opens (or creates) the database at path and provisions the checkpoint table.
func Open(path string) (*SqliteStore, error) {
	conn, err := db.NewSqliteDb(db.WithPath(path))
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	s, err := New(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	s.path = path
	return s, nil
}

// New wraps an existing connection and provisions the checkpoint table.
func New(conn *sqlx.DB) (*SqliteStore, error) {
	if _, err := conn.Exec(checkpointSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize checkpoint schema: %w", err)
	}
	return &SqliteStore{db: conn, path: db.MemoryPath}, nil
}

// DB exposes the underlying connection.
func (s *SqliteStore) DB() *sqlx.DB {
	return s.db
}

func (s *SqliteStore) Path() string {
	return s.path
}

func (s *SqliteStore) Close() error {
	if err := s.db.Close(); err != nil {
		slog.Error("failed to close store", "path", s.path, "error", err)
		return err
	}
	return nil
}

func (s *SqliteStore) EnsureTable(ctx context.Context, table string) error {
	if !ValidTableName(table) {
		return fmt.Errorf("%w %q", ErrInvalidTable, table)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(tableSchema, table)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

func (s *SqliteStore) GetChangedSince(ctx context.Context, table string, since *time.Time) ([]*replica.Record, error) {
	if !ValidTableName(table) {
		return nil, fmt.Errorf("%w %q", ErrInvalidTable, table)
	}

	var rows []dbRecord
	var err error
	if since == nil {
		err = s.db.SelectContext(ctx, &rows, fmt.Sprintf("SELECT * FROM %s", table))
	} else {
		// Stored text may carry any UTC offset or fraction width, so the text
		// comparison only narrows candidates and the exact check runs on parsed times.
		lower := replica.FormatTime(since.Add(-offsetSlack))
		err = s.db.SelectContext(ctx, &rows,
			fmt.Sprintf("SELECT * FROM %s WHERE updated_at > ? OR (deleted_at IS NOT NULL AND deleted_at > ?)", table),
			lower, lower)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query changes in %s: %w", table, err)
	}

	records := make([]*replica.Record, 0, len(rows))
	for i := range rows {
		r, err := rows[i].toRecord()
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", table, err)
		}
		if since != nil && !r.ChangedSince(*since) {
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

func (s *SqliteStore) GetByID(ctx context.Context, table, id string) (*replica.Record, error) {
	if !ValidTableName(table) {
		return nil, fmt.Errorf("%w %q", ErrInvalidTable, table)
	}

	var row dbRecord
	err := s.db.GetContext(ctx, &row, fmt.Sprintf("SELECT * FROM %s WHERE id = ?", table), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query %s.%s: %w", table, id, err)
	}
	return row.toRecord()
}

func (s *SqliteStore) Upsert(ctx context.Context, table string, r *replica.Record) error {
	return upsert(ctx, s.db, table, r)
}

func upsert(ctx context.Context, ext sqlx.ExtContext, table string, r *replica.Record) error {
	if !ValidTableName(table) {
		return fmt.Errorf("%w %q", ErrInvalidTable, table)
	}
	if r == nil {
		return fmt.Errorf("cannot upsert nil record into %s", table)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, name, quantity, updated_at, deleted_at, version)
	          VALUES (:id, :name, :quantity, :updated_at, :deleted_at, :version)
	          ON CONFLICT(id) DO UPDATE SET
	            name = excluded.name,
	            quantity = excluded.quantity,
	            updated_at = excluded.updated_at,
	            deleted_at = excluded.deleted_at,
	            version = excluded.version`, table)
	if _, err := sqlx.NamedExecContext(ctx, ext, query, fromRecord(r)); err != nil {
		return fmt.Errorf("failed to upsert %s.%s: %w", table, r.ID, err)
	}
	return nil
}

// Count returns the number of rows in table, tombstones included.
func (s *SqliteStore) Count(ctx context.Context, table string) (total int, tombstones int, err error) {
	if !ValidTableName(table) {
		return 0, 0, fmt.Errorf("%w %q", ErrInvalidTable, table)
	}
	var counts struct {
		Total      int `db:"total"`
		Tombstones int `db:"tombstones"`
	}
	err = s.db.GetContext(ctx, &counts,
		fmt.Sprintf("SELECT COUNT(*) AS total, COUNT(deleted_at) AS tombstones FROM %s", table))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return counts.Total, counts.Tombstones, nil
}
