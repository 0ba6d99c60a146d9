package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLiteStore is a Store backed by a single SQL table of JSON documents.
//
// Each row carries a version counter that is bumped on every write; the
// transaction commit path compares it against the versions observed while
// reading.
type SQLiteStore struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite creates an embedded store at the specified path.
//
// Transactions take the write lock up front (BEGIN IMMEDIATE) and wait up
// to five seconds for a busy database before failing with ErrConflict.
//
// The caller MUST call Close() when done.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Enable WAL mode for concurrent reads
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return newSQLStore(conn, path)
}

func newSQLStore(conn *sql.DB, path string) (*SQLiteStore, error) {
	s := &SQLiteStore{
		conn: conn,
		path: path,
		now:  time.Now,
	}
	if err := s.InitSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database location the store was opened with.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.conn == nil {
		return nil
	}

	// Checkpoint WAL before closing; libSQL remotes ignore this.
	_, _ = s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the documents table if it doesn't exist. Idempotent.
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,  -- JSON object
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(collection, updated_at);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Get returns a single document.
func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (Document, error) {
	doc, _, err := getVersioned(ctx, s.conn, collection, id)
	return doc, err
}

// Query returns the documents in collection matching q.
func (s *SQLiteStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	docs, _, err := queryVersioned(ctx, s.conn, collection, q)
	return docs, err
}

// Set creates or fully replaces a document.
func (s *SQLiteStore) Set(ctx context.Context, collection, id string, doc Document) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	return classify(upsert(ctx, s.conn, collection, id, doc, s.now()))
}

// Update merges fields into an existing document under the write lock.
func (s *SQLiteStore) Update(ctx context.Context, collection, id string, fields Document) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	current, _, err := getVersioned(ctx, tx, collection, id)
	if err != nil {
		return err
	}
	for k, v := range fields {
		current[k] = v
	}
	if err := upsert(ctx, tx, collection, id, current, s.now()); err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit update: %w", classify(err))
	}
	return nil
}

// Transaction runs fn with optimistic concurrency control.
func (s *SQLiteStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	tx := &sqliteTx{
		ctx:    ctx,
		store:  s,
		reads:  make(map[docKey]int64),
		writes: make(map[docKey]Document),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// Count returns the number of documents in a collection.
func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE collection = ?", collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, classify(err))
	}
	return n, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getVersioned(ctx context.Context, q querier, collection, id string) (Document, int64, error) {
	if err := validateKey(collection, id); err != nil {
		return nil, 0, err
	}

	var data string
	var version int64
	err := q.QueryRowContext(ctx,
		"SELECT data, version FROM documents WHERE collection = ? AND id = ?",
		collection, id).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get %s/%s: %w", collection, id, classify(err))
	}

	doc, err := parseDocument([]byte(data))
	if err != nil {
		return nil, 0, err
	}
	return doc, version, nil
}

func queryVersioned(ctx context.Context, q querier, collection string, query Query) ([]Document, []versioned, error) {
	stmt, args, err := buildQuery(collection, query)
	if err != nil {
		return nil, nil, err
	}

	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query %s: %w", collection, classify(err))
	}
	defer rows.Close()

	var docs []Document
	var versions []versioned
	for rows.Next() {
		var id, data string
		var version int64
		if err := rows.Scan(&id, &data, &version); err != nil {
			return nil, nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := parseDocument([]byte(data))
		if err != nil {
			return nil, nil, err
		}
		docs = append(docs, doc)
		versions = append(versions, versioned{id: id, version: version})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate %s: %w", collection, classify(err))
	}
	return docs, versions, nil
}

type versioned struct {
	id      string
	version int64
}

func upsert(ctx context.Context, q querier, collection, id string, doc Document, now time.Time) error {
	data, err := jsonText(doc)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, version, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			data = excluded.data,
			version = documents.version + 1,
			updated_at = excluded.updated_at
	`, collection, id, data, now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", collection, id, err)
	}
	return nil
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var sqlOps = map[Op]string{
	OpEq:  "=",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

// buildQuery translates a Query into SQL over json_extract paths.
func buildQuery(collection string, q Query) (string, []any, error) {
	conditions := []string{"collection = ?"}
	args := []any{collection}

	for _, f := range q.Filters {
		if !fieldPattern.MatchString(f.Field) {
			return "", nil, fmt.Errorf("invalid filter field %q", f.Field)
		}
		if f.Op == OpContains {
			conditions = append(conditions, fmt.Sprintf(
				"EXISTS (SELECT 1 FROM json_each(data, '$.%s') WHERE json_each.value = ?)", f.Field))
			args = append(args, f.Value)
			continue
		}
		op, ok := sqlOps[f.Op]
		if !ok {
			return "", nil, fmt.Errorf("invalid filter operator %q", f.Op)
		}
		path := fieldPath(f.Field)

		switch v := f.Value.(type) {
		case time.Time:
			conditions = append(conditions, fmt.Sprintf("julianday(%s) %s julianday(?)", path, op))
			args = append(args, v.UTC().Format(time.RFC3339Nano))
		case bool:
			// json_extract yields 1/0 for JSON booleans
			conditions = append(conditions, fmt.Sprintf("%s %s ?", path, op))
			if v {
				args = append(args, 1)
			} else {
				args = append(args, 0)
			}
		default:
			conditions = append(conditions, fmt.Sprintf("%s %s ?", path, op))
			args = append(args, v)
		}
	}

	stmt := "SELECT id, data, version FROM documents WHERE " + strings.Join(conditions, " AND ")

	if q.OrderBy != "" {
		if !fieldPattern.MatchString(q.OrderBy) {
			return "", nil, fmt.Errorf("invalid order field %q", q.OrderBy)
		}
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		path := fieldPath(q.OrderBy)
		// Timestamps sort chronologically; other values fall back to their own ordering.
		stmt += fmt.Sprintf(" ORDER BY COALESCE(julianday(%s), %s) %s, id ASC", path, path, dir)
	} else {
		stmt += " ORDER BY id ASC"
	}

	if q.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, q.Limit)
	}

	return stmt, args, nil
}

func fieldPath(field string) string {
	return "json_extract(data, '$." + field + "')"
}

func validateKey(collection, id string) error {
	if collection == "" {
		return fmt.Errorf("collection is required")
	}
	if id == "" {
		return fmt.Errorf("document id is required")
	}
	return nil
}

// classify maps driver errors onto the store taxonomy.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sqlite3.BUSY), errors.Is(err, sqlite3.LOCKED):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	default:
		return err
	}
}
