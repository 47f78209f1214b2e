// Package journal keeps an append-only audit log of processed commands in a
// bbolt database.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/muurk/scenebridge/internal/logging"
)

const openTimeout = time.Second

var bucketCommands = []byte("commands")

// ErrLocked is returned when another process holds the journal open.
var ErrLocked = errors.New("journal is locked by another process")

// Entry is one processed command.
type Entry struct {
	ID         uint64         `json:"id"`
	Time       time.Time      `json:"time"`
	ConnID     string         `json:"conn_id"`
	Transport  string         `json:"transport"`
	Type       string         `json:"type"`
	Params     map[string]any `json:"params,omitempty"`
	Status     string         `json:"status"`
	Message    string         `json:"message,omitempty"`
	DurationMs float64        `json:"duration_ms"`
}

// Journal is a command log backed by a bbolt file. It is safe for
// concurrent use.
type Journal struct {
	db         *bolt.DB
	maxEntries int
}

// Open opens or creates the journal at path. When maxEntries is positive the
// oldest entries are dropped to keep at most that many.
func Open(path string, maxEntries int) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, openError(path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCommands)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}

	logging.Debug("Journal opened", zap.String("path", path), zap.Int("max_entries", maxEntries))
	return &Journal{db: db, maxEntries: maxEntries}, nil
}

// OpenReadOnly opens an existing journal for reading.
func OpenReadOnly(path string) (*Journal, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("journal not found: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: openTimeout, ReadOnly: true})
	if err != nil {
		return nil, openError(path, err)
	}
	return &Journal{db: db}, nil
}

func openError(path string, err error) error {
	if errors.Is(err, bolt.ErrTimeout) {
		return fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return fmt.Errorf("failed to open journal %s: %w", path, err)
}

// Record appends e and returns its assigned ID. A zero Time is set to now.
func (j *Journal) Record(e Entry) (uint64, error) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	err := j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCommands)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		e.ID = id
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := b.Put(itob(id), data); err != nil {
			return err
		}
		return trim(b, id, j.maxEntries)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record command: %w", err)
	}
	return e.ID, nil
}

// trim deletes entries older than the newest max. IDs are sequential, so
// everything at or below last-max goes.
func trim(b *bolt.Bucket, last uint64, max int) error {
	if max <= 0 || last <= uint64(max) {
		return nil
	}
	cutoff := last - uint64(max)

	var stale [][]byte
	c := b.Cursor()
	for k, _ := c.First(); k != nil && btoi(k) <= cutoff; k, _ = c.Next() {
		stale = append(stale, append([]byte(nil), k...))
	}
	for _, k := range stale {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Recent returns up to n entries, newest first. n <= 0 returns all.
func (j *Journal) Recent(n int) ([]Entry, error) {
	var out []Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCommands)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if n > 0 && len(out) >= n {
				break
			}
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("corrupt entry %d: %w", btoi(k), err)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Len returns the number of stored entries.
func (j *Journal) Len() (int, error) {
	var n int
	err := j.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketCommands); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
