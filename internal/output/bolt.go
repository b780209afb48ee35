package output

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/PentesterFlow/SiteScout/internal/inventory"
)

var (
	bucketPages = []byte("pages")
	bucketOrder = []byte("order")
	bucketMeta  = []byte("meta")
	keyMetadata = []byte("metadata")
	keyStats    = []byte("stats")
)

// BoltWriter stores records in a bbolt file keyed by canonical URL, with a
// second bucket keeping visit order. Pages written during the run survive
// an aborted crawl.
type BoltWriter struct {
	mu   sync.Mutex
	db   *bolt.DB
	path string
	seq  uint64
}

// NewBoltWriter opens (or creates) the database at path.
func NewBoltWriter(path string) (*BoltWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var seq uint64
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketPages, bucketOrder, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		if last, _ := tx.Bucket(bucketOrder).Cursor().Last(); len(last) == 8 {
			seq = binary.BigEndian.Uint64(last)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltWriter{db: db, path: path, seq: seq}, nil
}

// WritePage stores one record.
func (b *BoltWriter) WritePage(rec inventory.PageRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.db.Update(func(tx *bolt.Tx) error {
		return b.putPage(tx, rec.URL.String(), data)
	})
}

func (b *BoltWriter) putPage(tx *bolt.Tx, key string, data []byte) error {
	pages := tx.Bucket(bucketPages)
	existed := pages.Get([]byte(key)) != nil
	if err := pages.Put([]byte(key), data); err != nil {
		return err
	}
	if existed {
		return nil
	}

	b.seq++
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], b.seq)
	return tx.Bucket(bucketOrder).Put(idx[:], []byte(key))
}

// WriteInventory replaces the stored contents with inv.
func (b *BoltWriter) WriteInventory(inv *inventory.Inventory) error {
	meta, err := json.Marshal(inv.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	stats, err := json.Marshal(inv.Stats())
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketPages, bucketOrder} {
			if err := tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		b.seq = 0

		for _, u := range inv.Keys() {
			rec, _ := inv.Get(u)
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to marshal record: %w", err)
			}
			if err := b.putPage(tx, u.String(), data); err != nil {
				return err
			}
		}

		mb := tx.Bucket(bucketMeta)
		if err := mb.Put(keyMetadata, meta); err != nil {
			return err
		}
		return mb.Put(keyStats, stats)
	})
}

// Document reads back what is stored, pages in visit order. Metadata and
// stats are zero until WriteInventory has run.
func (b *BoltWriter) Document() (*Document, error) {
	doc := &Document{}

	err := b.db.View(func(tx *bolt.Tx) error {
		mb := tx.Bucket(bucketMeta)
		if data := mb.Get(keyMetadata); data != nil {
			if err := json.Unmarshal(data, &doc.Metadata); err != nil {
				return err
			}
		}
		if data := mb.Get(keyStats); data != nil {
			if err := json.Unmarshal(data, &doc.Stats); err != nil {
				return err
			}
		}

		pages := tx.Bucket(bucketPages)
		return tx.Bucket(bucketOrder).ForEach(func(_, key []byte) error {
			data := pages.Get(key)
			if data == nil {
				return nil
			}
			var rec inventory.PageRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}
			doc.Pages = append(doc.Pages, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Path returns the database file path.
func (b *BoltWriter) Path() string {
	return b.path
}

// Close closes the database.
func (b *BoltWriter) Close() error {
	return b.db.Close()
}
