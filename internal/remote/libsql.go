//go:build libsql

package remote

import (
	"database/sql"
	"fmt"

	_ "github.com/tursodatabase/go-libsql"
)

// OpenLibSQL connects to a libSQL server (e.g. libsql://db.turso.io?authToken=...)
// and uses it with the same document schema as the embedded store.
func OpenLibSQL(url string) (*SQLiteStore, error) {
	conn, err := sql.Open("libsql", url)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open libsql: %w", ErrNetwork, err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: failed to reach libsql: %w", ErrNetwork, err)
	}
	return newSQLStore(conn, url)
}
