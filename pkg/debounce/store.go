package debounce

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRecords = []byte("debounce_records") // Path -> last processed (unix nanos + kind)

// recordSize is the encoded length of a Record.
const recordSize = 9

// memoryStore implements Store using an in-memory map.
type memoryStore struct {
	records map[string]Record
	closed  bool
	mu      sync.RWMutex
}

// NewMemoryStore creates an in-memory store. Records are lost on exit.
func NewMemoryStore() Store {
	return &memoryStore{
		records: make(map[string]Record),
	}
}

// Get implements Store.Get.
func (s *memoryStore) Get(path string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Record{}, false, ErrStoreClosed
	}
	rec, ok := s.records[path]
	return rec, ok, nil
}

// Set implements Store.Set.
func (s *memoryStore) Set(path string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.records[path] = rec
	return nil
}

// DeleteBefore implements Store.DeleteBefore.
func (s *memoryStore) DeleteBefore(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	removed := 0
	for path, rec := range s.records {
		if rec.At.Before(cutoff) {
			delete(s.records, path)
			removed++
		}
	}
	return removed, nil
}

// Len implements Store.Len.
func (s *memoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// Close implements Store.Close.
func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.records = nil
	return nil
}

// boltStore implements Store using BoltDB, so records survive a restart.
type boltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (or creates) a BoltDB-backed store at dbPath.
//
// The parent directory is created when missing. timeout bounds the wait for
// the file lock held by another process; zero means one second.
func OpenBoltStore(dbPath string, timeout time.Duration) (Store, error) {
	if timeout == 0 {
		timeout = time.Second
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(bucketRecords)
		return createErr
	}); err != nil {
		_ = db.Close() // nolint:errcheck
		return nil, fmt.Errorf("failed to create records bucket: %w", err)
	}

	return &boltStore{db: db}, nil
}

// Get implements Store.Get.
func (s *boltStore) Get(path string) (Record, bool, error) {
	var (
		rec   Record
		found bool
	)

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRecords).Get([]byte(path))
		if data == nil {
			return nil
		}
		if len(data) != recordSize {
			return fmt.Errorf("corrupt record for %s: %d bytes", path, len(data))
		}
		rec = decodeRecord(data)
		found = true
		return nil
	})
	if err != nil {
		return Record{}, false, err
	}

	return rec, found, nil
}

// Set implements Store.Set.
func (s *boltStore) Set(path string, rec Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketRecords).Put([]byte(path), encodeRecord(rec)); err != nil {
			return fmt.Errorf("failed to store record: %w", err)
		}
		return nil
	})
}

// DeleteBefore implements Store.DeleteBefore.
func (s *boltStore) DeleteBefore(cutoff time.Time) (int, error) {
	removed := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)

		var stale [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			if len(v) != recordSize || decodeRecord(v).At.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("failed to delete record: %w", err)
			}
		}
		removed = len(stale)
		return nil
	})

	return removed, err
}

// Len implements Store.Len.
func (s *boltStore) Len() int {
	n := 0
	_ = s.db.View(func(tx *bolt.Tx) error { // nolint:errcheck
		n = tx.Bucket(bucketRecords).Stats().KeyN
		return nil
	})
	return n
}

// Close implements Store.Close.
func (s *boltStore) Close() error {
	return s.db.Close()
}

func encodeRecord(rec Record) []byte {
	buf := make([]byte, recordSize)
	binary.BigEndian.PutUint64(buf, uint64(rec.At.UnixNano()))
	buf[8] = byte(rec.Kind)
	return buf
}

func decodeRecord(data []byte) Record {
	return Record{
		At:   time.Unix(0, int64(binary.BigEndian.Uint64(data[:8]))),
		Kind: Kind(data[8]),
	}
}
