package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/loambase/loam/doc"
	"github.com/loambase/loam/hlc"
	"github.com/loambase/loam/query"

	_ "github.com/mattn/go-sqlite3" // sqlite driver
)

/*
sqlstore is the SQLite-backed store. One database holds three tables: the
documents table keyed on (collection, key), the append-only oplog with a
unique index on the HLC triple, and a small meta table for node-local state;
a fourth table, schema_migrations, records the applied schema version.
The unique HLC index is what makes oplog appends idempotent - re-pushed
entries hit "insert or ignore" and vanish.

The oplog is retained indefinitely. Compaction (snapshot plus prefix
truncation, or Merkle-ranged sync) is an open design decision; the
autoincrement id column exists so a prefix truncator could be added without
a schema migration.
*/

////////////////////////////////////////////////////////////////////////////////

type sqlStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open SQLite handle in the store contract, creating
// the schema if required.
func NewSQLStore(db *sql.DB) (Store, error) {
	s := &sqlStore{db: db}
	if err := s.initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open opens (or creates) the database at path and returns a store over it.
func Open(path string) (Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store, err := NewSQLStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *sqlStore) initialize() error {
	var maxApplied int64
	err := s.db.QueryRow("select max(version) from schema_migrations").Scan(&maxApplied)
	if err == nil && maxApplied == 1 {
		return nil
	}
	if _, err := s.db.Exec(`
	create table if not exists documents (
		collection text not null,
		key text not null,
		body text,
		deleted integer not null default 0,
		hlc_wall bigint not null,
		hlc_logic integer not null,
		hlc_node text not null,
		primary key (collection, key)
	);

	create table if not exists oplog (
		id integer primary key autoincrement,
		collection text not null,
		key text not null,
		op text not null,
		body text,
		hlc_wall bigint not null,
		hlc_logic integer not null,
		hlc_node text not null
	);

	create unique index if not exists oplog_hlc_idx on oplog (hlc_wall, hlc_logic, hlc_node);

	create table if not exists meta (
		key text primary key,
		value text not null
	);

	create table schema_migrations(
		version bigint not null,
		timestamp text not null default current_timestamp
	);

	insert into schema_migrations(version) values (1);
	`); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (s *sqlStore) SaveDocument(ctx context.Context, d doc.Document) error {
	if err := saveDocument(ctx, s.db, d); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveDocument(ctx context.Context, db execer, d doc.Document) error {
	body := sql.NullString{}
	if !d.Deleted {
		body = sql.NullString{String: string(d.Body), Valid: true}
	}
	_, err := db.ExecContext(ctx, `
	insert into documents (collection, key, body, deleted, hlc_wall, hlc_logic, hlc_node)
	values ($1, $2, $3, $4, $5, $6, $7)
	on conflict (collection, key) do update set
		body = excluded.body,
		deleted = excluded.deleted,
		hlc_wall = excluded.hlc_wall,
		hlc_logic = excluded.hlc_logic,
		hlc_node = excluded.hlc_node`,
		d.Collection, d.Key, body, d.Deleted, d.UpdatedAt.Wall, d.UpdatedAt.Logical, d.UpdatedAt.Node,
	)
	return err
}

func (s *sqlStore) GetDocument(ctx context.Context, collection, key string) (doc.Document, error) {
	var body sql.NullString
	d := doc.Document{Collection: collection, Key: key}
	err := s.db.QueryRowContext(ctx, `
	select body, deleted, hlc_wall, hlc_logic, hlc_node
	from documents where collection = $1 and key = $2`,
		collection, key,
	).Scan(&body, &d.Deleted, &d.UpdatedAt.Wall, &d.UpdatedAt.Logical, &d.UpdatedAt.Node)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return doc.Document{}, DocumentNotFoundError{collection, key}
		}
		return doc.Document{}, fmt.Errorf("failed to read document: %w", err)
	}
	if body.Valid {
		d.Body = []byte(body.String)
	}
	return d, nil
}

func appendOplogEntry(ctx context.Context, db execer, entry doc.OplogEntry) error {
	body := sql.NullString{}
	if entry.Op == doc.OpPut {
		body = sql.NullString{String: string(entry.Body), Valid: true}
	}
	_, err := db.ExecContext(ctx, `
	insert or ignore into oplog (collection, key, op, body, hlc_wall, hlc_logic, hlc_node)
	values ($1, $2, $3, $4, $5, $6, $7)`,
		entry.Collection, entry.Key, string(entry.Op), body,
		entry.Timestamp.Wall, entry.Timestamp.Logical, entry.Timestamp.Node,
	)
	return err
}

func (s *sqlStore) AppendOplogEntry(ctx context.Context, entry doc.OplogEntry) error {
	if err := appendOplogEntry(ctx, s.db, entry); err != nil {
		return fmt.Errorf("failed to append oplog entry: %w", err)
	}
	return nil
}

func (s *sqlStore) OplogSince(ctx context.Context, ts hlc.Timestamp) ([]doc.OplogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
	select collection, key, op, body, hlc_wall, hlc_logic, hlc_node from oplog
	where hlc_wall > $1
		or (hlc_wall = $2 and hlc_logic > $3)
		or (hlc_wall = $4 and hlc_logic = $5 and hlc_node > $6)
	order by hlc_wall, hlc_logic, hlc_node`,
		ts.Wall, ts.Wall, ts.Logical, ts.Wall, ts.Logical, ts.Node,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read oplog: %w", err)
	}
	defer rows.Close()
	var entries []doc.OplogEntry
	for rows.Next() {
		var entry doc.OplogEntry
		var op string
		var body sql.NullString
		if err := rows.Scan(
			&entry.Collection, &entry.Key, &op, &body,
			&entry.Timestamp.Wall, &entry.Timestamp.Logical, &entry.Timestamp.Node,
		); err != nil {
			return nil, fmt.Errorf("failed to scan oplog entry: %w", err)
		}
		entry.Op = doc.Op(op)
		if body.Valid {
			entry.Body = []byte(body.String)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate oplog: %w", err)
	}
	return entries, nil
}

func (s *sqlStore) LatestTimestamp(ctx context.Context) (hlc.Timestamp, error) {
	var ts hlc.Timestamp
	err := s.db.QueryRowContext(ctx, `
	select hlc_wall, hlc_logic, hlc_node from oplog
	order by hlc_wall desc, hlc_logic desc, hlc_node desc limit 1`,
	).Scan(&ts.Wall, &ts.Logical, &ts.Node)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return hlc.Timestamp{}, nil
		}
		return hlc.Timestamp{}, fmt.Errorf("failed to read latest timestamp: %w", err)
	}
	return ts, nil
}

func (s *sqlStore) ApplyBatch(ctx context.Context, docs []doc.Document, entries []doc.OplogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	for _, d := range docs {
		if err := saveDocument(ctx, tx, d); err != nil {
			return fmt.Errorf("failed to save document in batch: %w", err)
		}
	}
	for _, entry := range entries {
		if err := appendOplogEntry(ctx, tx, entry); err != nil {
			return fmt.Errorf("failed to append oplog entry in batch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (s *sqlStore) QueryDocuments(
	ctx context.Context, collection string, opts QueryOptions) ([]doc.Document, error) {
	var sb strings.Builder
	sb.WriteString(`
	select key, body, hlc_wall, hlc_logic, hlc_node from documents
	where collection = ? and deleted = 0`)
	args := []any{collection}
	if opts.Predicate != nil {
		predSQL, predArgs, err := query.ToSQL(opts.Predicate)
		if err != nil {
			return nil, fmt.Errorf("failed to translate predicate: %w", err)
		}
		sb.WriteString(" and (")
		sb.WriteString(predSQL)
		sb.WriteString(")")
		args = append(args, predArgs...)
	}
	if opts.UpdatedAfterWall > 0 {
		sb.WriteString(" and hlc_wall > ?")
		args = append(args, opts.UpdatedAfterWall)
	}
	orderSQL, orderArgs := query.OrderBySQL(opts.OrderBy)
	sb.WriteString(" order by ")
	sb.WriteString(orderSQL)
	args = append(args, orderArgs...)
	if opts.Descending {
		sb.WriteString(" desc")
	}
	take := opts.Take
	if take < 0 {
		take = -1 // sqlite: no limit
	}
	sb.WriteString(" limit ? offset ?")
	args = append(args, take, opts.Skip)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()
	var docs []doc.Document
	for rows.Next() {
		d := doc.Document{Collection: collection}
		var body sql.NullString
		if err := rows.Scan(&d.Key, &body, &d.UpdatedAt.Wall, &d.UpdatedAt.Logical, &d.UpdatedAt.Node); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if body.Valid {
			d.Body = []byte(body.String)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

func (s *sqlStore) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"select distinct collection from documents where deleted = 0 order by collection")
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()
	var collections []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		collections = append(collections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate collections: %w", err)
	}
	return collections, nil
}

func (s *sqlStore) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "select value from meta where key = $1", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", MetaNotFoundError{key}
		}
		return "", fmt.Errorf("failed to read meta: %w", err)
	}
	return value, nil
}

func (s *sqlStore) PutMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
	insert into meta (key, value) values ($1, $2)
	on conflict (key) do update set value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to write meta: %w", err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
