package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type docKey struct {
	collection string
	id         string
}

// sqliteTx buffers writes and remembers the version of everything it read.
// A version of 0 means the document was observed as absent.
type sqliteTx struct {
	ctx    context.Context
	store  *SQLiteStore
	reads  map[docKey]int64
	writes map[docKey]Document
	order  []docKey
}

func (t *sqliteTx) Get(collection, id string) (Document, error) {
	key := docKey{collection, id}
	if doc, ok := t.writes[key]; ok {
		return doc.Clone(), nil
	}

	doc, version, err := getVersioned(t.ctx, t.store.conn, collection, id)
	switch {
	case errors.Is(err, ErrNotFound):
		t.observe(key, 0)
		return nil, err
	case err != nil:
		return nil, err
	}
	t.observe(key, version)
	return doc, nil
}

func (t *sqliteTx) Query(collection string, q Query) ([]Document, error) {
	docs, versions, err := queryVersioned(t.ctx, t.store.conn, collection, q)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		t.observe(docKey{collection, v.id}, v.version)
	}
	return docs, nil
}

func (t *sqliteTx) Set(collection, id string, doc Document) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	t.buffer(docKey{collection, id}, doc.Clone())
	return nil
}

func (t *sqliteTx) Update(collection, id string, fields Document) error {
	current, err := t.Get(collection, id)
	if err != nil {
		return err
	}
	for k, v := range fields {
		current[k] = v
	}
	t.buffer(docKey{collection, id}, current)
	return nil
}

// observe keeps the first version seen; a later change is caught at commit.
func (t *sqliteTx) observe(key docKey, version int64) {
	if _, ok := t.reads[key]; !ok {
		t.reads[key] = version
	}
}

func (t *sqliteTx) buffer(key docKey, doc Document) {
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	t.writes[key] = doc
}

// commit validates the read set and applies buffered writes atomically.
func (t *sqliteTx) commit() error {
	if len(t.writes) == 0 {
		return nil
	}

	tx, err := t.store.conn.BeginTx(t.ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	for key, want := range t.reads {
		var current int64
		err := tx.QueryRowContext(t.ctx,
			"SELECT version FROM documents WHERE collection = ? AND id = ?",
			key.collection, key.id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			current = 0
		} else if err != nil {
			return fmt.Errorf("failed to check version: %w", classify(err))
		}
		if current != want {
			return fmt.Errorf("%w: %s/%s changed since read", ErrConflict, key.collection, key.id)
		}
	}

	now := t.store.now()
	for _, key := range t.order {
		if err := upsert(t.ctx, tx, key.collection, key.id, t.writes[key], now); err != nil {
			return classify(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classify(err))
	}
	return nil
}

func jsonText(doc Document) (string, error) {
	if doc == nil {
		doc = Document{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal document: %w", ErrData, err)
	}
	return string(data), nil
}
