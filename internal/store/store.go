// Package store provides a thin bbolt wrapper for ratecal's local page cache.
//
// Pages are written as they are fetched and served back to later runs of
// the same query, so the calendar can be reopened offline. There is no TTL;
// `ratecal cache clear` or --refresh discards cached pages.
//
// Buckets:
//
//	pages   : fetched pages keyed by query+cursor
//	exports : records of JSONL exports written by `ratecal export`
//	_meta   : internal: schema version, created_at
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/derickschaefer/ratecal/internal/model"
)

// CurrentSchema is the schema version new stores are created with. Bump
// when bucket layout or key format changes.
const CurrentSchema = 1

// Bucket name constants.
var (
	bucketPages    = []byte("pages")
	bucketExports  = []byte("exports")
	bucketInternal = []byte("_meta")
)

// AllBuckets lists every top-level bucket for stats and clear operations.
var AllBuckets = []string{"pages", "exports"}

// Store wraps a bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the bbolt database at path.
// Parent directories are created automatically.
// Runs schema migrations on every open.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the open database.
func (s *Store) Path() string {
	return s.db.Path()
}

// ─── Migrations ───────────────────────────────────────────────────────────────

// migrate ensures all buckets exist and schema is current.
func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketPages, bucketExports, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", CurrentSchema))); err != nil {
				return err
			}
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return nil
	})
}

// SchemaVersion returns the schema version recorded in _meta.
func (s *Store) SchemaVersion() (string, error) {
	var v string
	err := s.db.View(func(tx *bolt.Tx) error {
		v = string(tx.Bucket(bucketInternal).Get([]byte("schema_version")))
		return nil
	})
	return v, err
}

// ─── Pages ────────────────────────────────────────────────────────────────────

// PageKey builds the canonical key for a cached page.
// Format: prop:<id>|start:<date>|end:<date>|cursor:<c>
func PageKey(q model.Query, cursor string) string {
	return q.Key() + "|cursor:" + cursor
}

// storedPage is the on-disk envelope for a cached page.
type storedPage struct {
	Query     model.Query `json:"query"`
	FetchedAt time.Time   `json:"fetched_at"`
	Page      model.Page  `json:"page"`
}

// PutPage stores a fetched page under its query and request cursor.
func (s *Store) PutPage(q model.Query, cursor string, page model.Page) error {
	b, err := json.Marshal(storedPage{Query: q, FetchedAt: time.Now().UTC(), Page: page})
	if err != nil {
		return fmt.Errorf("encoding page: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPages).Put([]byte(PageKey(q, cursor)), b)
	})
}

// GetPage retrieves a cached page.
// Returns (page, fetchedAt, true, nil) if found, zero values and false if not.
func (s *Store) GetPage(q model.Query, cursor string) (model.Page, time.Time, bool, error) {
	var env storedPage
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketPages).Get([]byte(PageKey(q, cursor)))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &env)
	})
	if err != nil {
		return model.Page{}, time.Time{}, false, fmt.Errorf("decoding page %s: %w", PageKey(q, cursor), err)
	}
	return env.Page, env.FetchedAt, found, nil
}

// ListPageKeys returns all page keys for a property, in key order.
// Pass propertyID=0 to list every key.
func (s *Store) ListPageKeys(propertyID int) ([]string, error) {
	prefix := "prop:"
	if propertyID > 0 {
		prefix = fmt.Sprintf("prop:%d|", propertyID)
	}
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPages).Cursor()
		for k, _ := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

// DeleteQuery removes every cached page of q. It returns the number removed.
func (s *Store) DeleteQuery(q model.Query) (int, error) {
	prefix := []byte(q.Key() + "|cursor:")
	n := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPages).Cursor()
		for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Seek(prefix) {
			if err := c.Delete(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// ─── Exports ──────────────────────────────────────────────────────────────────

// Export records a JSONL export of a fully loaded dataset.
type Export struct {
	ID        string      `json:"id"`
	Query     model.Query `json:"query"`
	Path      string      `json:"path"`
	Rooms     int         `json:"rooms"`
	Pages     int         `json:"pages"`
	CreatedAt time.Time   `json:"created_at"`
}

// PutExport saves an export record. The key is export:<ID>.
func (s *Store) PutExport(e Export) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketExports).Put([]byte("export:"+e.ID), b)
	})
}

// ListExports returns every export record in key order.
func (s *Store) ListExports() ([]Export, error) {
	var out []Export
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketExports).ForEach(func(k, v []byte) error {
			var e Export
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

// BucketStats holds row count and byte size for a single bucket.
type BucketStats struct {
	Name  string
	Count int
	Bytes int64
}

// Stats returns row counts and approximate sizes for all buckets, in
// AllBuckets order.
func (s *Store) Stats() ([]BucketStats, error) {
	var stats []BucketStats
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range AllBuckets {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}
			var count int
			var bytes int64
			b.ForEach(func(k, v []byte) error {
				count++
				bytes += int64(len(k) + len(v))
				return nil
			})
			stats = append(stats, BucketStats{Name: name, Count: count, Bytes: bytes})
		}
		return nil
	})
	return stats, err
}

// ClearBucket deletes all entries in the named bucket.
func (s *Store) ClearBucket(name string) error {
	bname := []byte(name)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bname); err != nil {
			return fmt.Errorf("clearing bucket %s: %w", name, err)
		}
		_, err := tx.CreateBucket(bname)
		return err
	})
}

// ClearAll deletes all entries from every user-facing bucket.
func (s *Store) ClearAll() error {
	for _, name := range AllBuckets {
		if err := s.ClearBucket(name); err != nil {
			return err
		}
	}
	return nil
}

// ─── Compaction ───────────────────────────────────────────────────────────────

// Compact rewrites the database into a fresh file and swaps it in place,
// returning the file size before and after. The Store stays usable.
func (s *Store) Compact() (before, after int64, err error) {
	path := s.db.Path()
	fi, err := os.Stat(path)
	if err != nil {
		return 0, 0, err
	}
	before = fi.Size()

	tmp := path + ".compact"
	dst, err := bolt.Open(tmp, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return before, 0, fmt.Errorf("opening compaction target: %w", err)
	}
	if err := bolt.Compact(dst, s.db, 64<<20); err != nil {
		dst.Close()
		os.Remove(tmp)
		return before, 0, fmt.Errorf("compacting: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return before, 0, err
	}
	if err := s.db.Close(); err != nil {
		os.Remove(tmp)
		return before, 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return before, 0, fmt.Errorf("replacing database: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return before, 0, fmt.Errorf("reopening db %s: %w", path, err)
	}
	s.db = db

	if fi, err = os.Stat(path); err != nil {
		return before, 0, err
	}
	return before, fi.Size(), nil
}
