package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fanscout/scout/internal/model"
)

// IndexFile is the per-collection JSON array of record ids.
const IndexFile = "index.json"

// ErrInvalidID is returned for ids that cannot name a record file.
var ErrInvalidID = errors.New("invalid record id")

// Collection is one on-disk namespace of records: {dir}/{id}.json plus
// {dir}/index.json. Writers to the same collection are serialised.
type Collection[T model.Entity] struct {
	name   string
	dir    string
	logger *log.Logger

	mu      sync.Mutex
	written map[string][sha256.Size]byte // digest of the last record this process wrote, per id
}

func newCollection[T model.Entity](root, name string, logger *log.Logger) (*Collection[T], error) {
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", name, err)
	}
	return &Collection[T]{
		name:    name,
		dir:     dir,
		logger:  logger,
		written: make(map[string][sha256.Size]byte),
	}, nil
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Dir returns the directory holding the collection's records.
func (c *Collection[T]) Dir() string { return c.dir }

// Put writes the record and adds its id to the index.
func (c *Collection[T]) Put(v T) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("cannot cache invalid %s record: %w", c.name, err)
	}
	if err := checkID(v.EntityID()); err != nil {
		return fmt.Errorf("cannot cache %s record: %w", c.name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writeRecord(v); err != nil {
		return err
	}

	ids, err := c.readIndex()
	if err != nil {
		return err
	}
	if slices.Contains(ids, v.EntityID()) {
		return nil
	}
	return c.writeIndex(append(ids, v.EntityID()))
}

// Get returns the record for id. A missing or undecodable record is
// reported as absent, not as an error.
func (c *Collection[T]) Get(id string) (T, bool, error) {
	var zero T
	if checkID(id) != nil {
		return zero, false, nil
	}
	data, err := os.ReadFile(c.recordPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to read %s/%s: %w", c.name, id, err)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Printf("WARNING: Skipping corrupt %s record %s: %v", c.name, id, err)
		return zero, false, nil
	}
	return v, true, nil
}

// List resolves every id in the index, in index order. Records that are
// missing or corrupt are skipped.
func (c *Collection[T]) List() ([]T, error) {
	ids, err := c.IDs()
	if err != nil {
		return nil, err
	}

	items := make([]T, 0, len(ids))
	for _, id := range ids {
		v, ok, err := c.Get(id)
		if err != nil {
			c.logger.Printf("WARNING: Skipping unreadable %s record %s: %v", c.name, id, err)
			continue
		}
		if ok {
			items = append(items, v)
		}
	}
	return items, nil
}

// IDs returns the ids listed in the index.
func (c *Collection[T]) IDs() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readIndex()
}

// ReplaceAll deletes every record in the collection, writes items, and
// rewrites the index. The index is written last so an interrupted call
// leaves at worst ids without records, which List skips.
func (c *Collection[T]) ReplaceAll(items []T) error {
	for _, v := range items {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("cannot cache invalid %s record %s: %w", c.name, v.EntityID(), err)
		}
		if err := checkID(v.EntityID()); err != nil {
			return fmt.Errorf("cannot cache %s record: %w", c.name, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.recordIDs()
	if err != nil {
		return err
	}
	for _, id := range existing {
		if err := os.Remove(c.recordPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s/%s: %w", c.name, id, err)
		}
		delete(c.written, id)
	}

	ids := make([]string, 0, len(items))
	for _, v := range items {
		if err := c.writeRecord(v); err != nil {
			return err
		}
		if !slices.Contains(ids, v.EntityID()) {
			ids = append(ids, v.EntityID())
		}
	}

	return c.writeIndex(ids)
}

// Delete removes a record and its index entry. Deleting an absent id is a no-op.
func (c *Collection[T]) Delete(id string) error {
	if err := checkID(id); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.recordPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s/%s: %w", c.name, id, err)
	}
	delete(c.written, id)

	ids, err := c.readIndex()
	if err != nil {
		return err
	}
	if i := slices.Index(ids, id); i >= 0 {
		return c.writeIndex(slices.Delete(ids, i, i+1))
	}
	return nil
}

// adopt adds an externally written record to the index.
func (c *Collection[T]) adopt(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.readIndex()
	if err != nil {
		return err
	}
	if slices.Contains(ids, id) {
		return nil
	}
	return c.writeIndex(append(ids, id))
}

// wroteItself reports whether data is exactly what this process last wrote for id.
func (c *Collection[T]) wroteItself(id string, data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	sum, ok := c.written[id]
	return ok && sum == sha256.Sum256(data)
}

func (c *Collection[T]) recordPath(id string) string {
	return filepath.Join(c.dir, model.Filename(id))
}

// writeRecord must be called with c.mu held.
func (c *Collection[T]) writeRecord(v T) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", c.name, v.EntityID(), err)
	}
	if err := writeFileAtomic(c.recordPath(v.EntityID()), data); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", c.name, v.EntityID(), err)
	}
	c.written[v.EntityID()] = sha256.Sum256(data)
	return nil
}

// readIndex must be called with c.mu held. A corrupt index is rebuilt
// from the record files on disk.
func (c *Collection[T]) readIndex() ([]string, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, IndexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s index: %w", c.name, err)
	}

	var ids []string
	if err := json.Unmarshal(bytes.TrimSpace(data), &ids); err != nil {
		c.logger.Printf("WARNING: Rebuilding corrupt %s index: %v", c.name, err)
		ids, err = c.recordIDs()
		if err != nil {
			return nil, err
		}
		if err := c.writeIndex(ids); err != nil {
			return nil, err
		}
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (c *Collection[T]) writeIndex(ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to marshal %s index: %w", c.name, err)
	}
	if err := writeFileAtomic(filepath.Join(c.dir, IndexFile), data); err != nil {
		return fmt.Errorf("failed to write %s index: %w", c.name, err)
	}
	return nil
}

// recordIDs lists the ids of record files present on disk, sorted.
func (c *Collection[T]) recordIDs() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s directory: %w", c.name, err)
	}

	var ids []string
	for _, e := range entries {
		if id, ok := recordID(e.Name()); ok && !e.IsDir() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// recordID extracts the id from a record filename, rejecting the index
// and temp files.
// checkID rejects ids that cannot be used as a record filename inside the
// collection directory.
func checkID(id string) error {
	switch {
	case id == "",
		id == strings.TrimSuffix(IndexFile, ".json"),
		strings.HasPrefix(id, "."),
		strings.ContainsAny(id, `/\`),
		strings.Contains(id, ".."):
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func recordID(name string) (string, bool) {
	if name == IndexFile || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
		return "", false
	}
	return strings.TrimSuffix(name, ".json"), true
}

// writeFileAtomic writes data to a temp file in the same directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
