// Package remote provides the document-store client the fanscout core talks to.
//
// The store is addressed by collection and document ID. Documents are
// schemaless field maps; the core converts them to and from model entities
// with Encode and Decode.
//
// Architecture:
//   - Store: per-document Get/Set/Update, filtered Query, optimistic Transaction
//   - SQLiteStore: embedded implementation (ncruces/go-sqlite3, WAL mode)
//   - OpenLibSQL: the same schema on a Turso/libSQL server (build tag "libsql")
//
// Transactions:
//
// Reads inside a transaction record the version of every document they see.
// Writes are buffered and applied at commit inside a single SQL transaction,
// after checking that every recorded version is still current. If another
// writer got there first the commit fails with ErrConflict and nothing is
// written; callers retry the whole transaction function.
//
//	err := store.Transaction(ctx, func(tx remote.Tx) error {
//	    doc, err := tx.Get("users", userID)
//	    if err != nil {
//	        return err
//	    }
//	    ...
//	    return tx.Update("users", userID, remote.Document{"points": newPoints})
//	})
//
// Timestamps are stored as RFC 3339 strings. Filters and ordering on
// timestamp fields compare chronologically, not lexically.
package remote
