//go:build !libsql

package remote

import "fmt"

// OpenLibSQL is unavailable without the libsql build tag.
func OpenLibSQL(url string) (*SQLiteStore, error) {
	return nil, fmt.Errorf("%w: rebuild with -tags libsql to use %q", ErrNotSupported, url)
}
