package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
)

// Document is a schemaless field map stored under a collection and ID.
type Document map[string]any

// Clone returns a shallow copy of d.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return maps.Clone(d)
}

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "=="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpLt  Op = "<"
	OpLte Op = "<="

	// OpContains matches documents whose array field holds Value.
	OpContains Op = "array-contains"
)

// Filter restricts a Query to documents whose Field compares to Value.
// A time.Time value compares chronologically.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where builds a Filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query selects documents from one collection.
type Query struct {
	Filters []Filter
	// OrderBy names the field to sort by (empty = document ID)
	OrderBy string
	// Desc reverses the sort order
	Desc bool
	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// Store is the remote document database.
type Store interface {
	// Get returns the document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Query returns the documents in collection matching q.
	Query(ctx context.Context, collection string, q Query) ([]Document, error)

	// Set creates or fully replaces a document.
	Set(ctx context.Context, collection, id string, doc Document) error

	// Update merges fields into an existing document.
	// Returns ErrNotFound if the document does not exist.
	Update(ctx context.Context, collection, id string, fields Document) error

	// Transaction runs fn with optimistic concurrency control.
	// If fn returns an error nothing is written and that error is returned.
	// A version clash at commit returns ErrConflict.
	Transaction(ctx context.Context, fn func(tx Tx) error) error

	// Close releases the underlying connection.
	Close() error
}

// Tx is the view of the store inside a Transaction.
//
// Query inside a transaction reads committed data only; it does not observe
// the transaction's own buffered writes. Get does.
type Tx interface {
	Get(collection, id string) (Document, error)
	Query(collection string, q Query) ([]Document, error)
	Set(collection, id string, doc Document) error
	Update(collection, id string, fields Document) error
}

// Encode converts an entity into a Document.
func Encode(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode %T: %w", ErrData, v, err)
	}
	return parseDocument(data)
}

// Decode converts a Document into the entity pointed to by v.
func Decode(doc Document, v any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal document: %w", ErrData, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: failed to decode into %T: %w", ErrData, v, err)
	}
	return nil
}

// DecodeAll decodes every document into a slice of T.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := Decode(doc, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// parseDocument unmarshals JSON keeping numbers exact.
func parseDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: invalid document: %w", ErrData, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is not an object", ErrData)
	}
	return doc, nil
}
