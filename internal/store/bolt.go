package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mmcdole/gamedb/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketGames        = []byte("games")        // id -> CacheEntry JSON
	bucketFingerprints = []byte("fingerprints") // len(query)|query|page|id -> nil
)

// BoltStore implements domain.CacheStore using BoltDB.
// Each Upsert is a single read-write transaction, so readers never see a
// partial batch.
type BoltStore struct {
	db   *bolt.DB
	opts options

	mu     sync.RWMutex // guards closed
	closed bool
}

// OpenBolt opens (or creates) the BoltDB file at path
func OpenBolt(path string, opts ...Option) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketGames, bucketFingerprints} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, opts: buildOptions(opts)}, nil
}

func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// === Key encoding ===

func idKey(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// queryPrefix is length-prefixed so "ab"/page 1 never shares a prefix with "a".
func queryPrefix(query string) []byte {
	b := binary.AppendUvarint(nil, uint64(len(query)))
	return append(b, query...)
}

func fingerprintPrefix(query string, page int) []byte {
	return binary.BigEndian.AppendUint32(queryPrefix(query), uint32(page))
}

func fingerprintKey(e domain.CacheEntry) []byte {
	return append(fingerprintPrefix(e.Query, e.Page), idKey(e.Game.ID)...)
}

// === Reads ===

func (s *BoltStore) view(op string, fn func(tx *bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &domain.CacheIOError{Op: op, Err: domain.ErrStoreClosed}
	}
	if err := s.db.View(fn); err != nil {
		return &domain.CacheIOError{Op: op, Err: err}
	}
	return nil
}

func (s *BoltStore) update(op string, fn func(tx *bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &domain.CacheIOError{Op: op, Err: domain.ErrStoreClosed}
	}
	if err := s.db.Update(fn); err != nil {
		return &domain.CacheIOError{Op: op, Err: err}
	}
	return nil
}

// scanPrefix loads every row indexed under prefix
func scanPrefix(tx *bolt.Tx, prefix []byte) ([]domain.CacheEntry, error) {
	games := tx.Bucket(bucketGames)
	c := tx.Bucket(bucketFingerprints).Cursor()

	var entries []domain.CacheEntry
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		id := k[len(k)-8:]
		v := games.Get(id)
		if v == nil {
			continue
		}
		var e domain.CacheEntry
		if err := json.Unmarshal(v, &e); err != nil {
			return nil, err
		}
		// Stale index entry: the row now belongs to another fingerprint
		if !bytes.Equal(fingerprintKey(e), k) {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *BoltStore) Lookup(ctx context.Context, query string, page int) ([]domain.Game, error) {
	var entries []domain.CacheEntry
	err := s.view("lookup", func(tx *bolt.Tx) error {
		var err error
		entries, err = scanPrefix(tx, fingerprintPrefix(query, page))
		return err
	})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(entries)
	return gamesOf(entries), nil
}

func (s *BoltStore) LookupAll(ctx context.Context, query string) ([]domain.Game, error) {
	var entries []domain.CacheEntry
	err := s.view("lookup all", func(tx *bolt.Tx) error {
		var err error
		entries, err = scanPrefix(tx, queryPrefix(query))
		return err
	})
	if err != nil {
		return nil, err
	}
	sortByPage(entries)
	return gamesOf(entries), nil
}

// === Writes ===

func (s *BoltStore) Upsert(ctx context.Context, games []domain.Game, query string, page int) error {
	if len(games) == 0 {
		return nil
	}
	entries := newEntries(games, query, page, s.opts.now().UnixMilli())

	return s.update("upsert", func(tx *bolt.Tx) error {
		gb := tx.Bucket(bucketGames)
		fb := tx.Bucket(bucketFingerprints)
		for _, e := range entries {
			key := idKey(e.Game.ID)

			// Drop the index entry of the row being replaced
			if old := gb.Get(key); old != nil {
				var prev domain.CacheEntry
				if err := json.Unmarshal(old, &prev); err != nil {
					if err := dropIndexFor(fb, key); err != nil {
						return err
					}
				} else if err := fb.Delete(fingerprintKey(prev)); err != nil {
					return err
				}
			}

			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := gb.Put(key, data); err != nil {
				return err
			}
			if err := fb.Put(fingerprintKey(e), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// dropIndexFor removes every index entry pointing at id. Used when the
// stored row is unreadable and its fingerprint is unknown.
func dropIndexFor(fb *bolt.Bucket, id []byte) error {
	var keys [][]byte
	c := fb.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		if bytes.HasSuffix(k, id) {
			keys = append(keys, append([]byte(nil), k...))
		}
	}
	for _, k := range keys {
		if err := fb.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltStore) EvictOlderThan(ctx context.Context, cutoff int64) (int, error) {
	removed := 0
	err := s.update("evict older than", func(tx *bolt.Tx) error {
		gb := tx.Bucket(bucketGames)
		fb := tx.Bucket(bucketFingerprints)

		var stale []domain.CacheEntry
		err := gb.ForEach(func(_, v []byte) error {
			var e domain.CacheEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if e.CachedAt < cutoff {
				stale = append(stale, e)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, e := range stale {
			if err := gb.Delete(idKey(e.Game.ID)); err != nil {
				return err
			}
			if err := fb.Delete(fingerprintKey(e)); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *BoltStore) EvictByQuery(ctx context.Context, query string) (int, error) {
	removed := 0
	err := s.update("evict by query", func(tx *bolt.Tx) error {
		gb := tx.Bucket(bucketGames)
		fb := tx.Bucket(bucketFingerprints)

		// Collect first; deleting under a live cursor skips keys
		prefix := queryPrefix(query)
		var keys [][]byte
		c := fb.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}

		for _, k := range keys {
			if err := fb.Delete(k); err != nil {
				return err
			}
			if err := gb.Delete(k[len(k)-8:]); err != nil {
				return err
			}
		}
		removed = len(keys)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
