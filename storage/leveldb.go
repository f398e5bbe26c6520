package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore implements KeyValueStore over an on-disk LevelDB database, for
// local and development deployments that don't run Redis. Beyond plain
// Get/Set it carries the extra operations the key-value store boundary needs
// (Keys, MGet, Exists, TTL) and a mutex-guarded TTL index since LevelDB has
// no native expiry.
type LevelDBStore struct {
	db *leveldb.DB

	mu       sync.Mutex
	expiries map[string]time.Time
}

// NewLevelDBStore opens (or creates) a LevelDB database at path.
func NewLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open leveldb %s: %w", path, err)
	}
	return &LevelDBStore{db: db, expiries: make(map[string]time.Time)}, nil
}

// Close releases the underlying database handle.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func (s *LevelDBStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.expired(key) {
		return nil, ErrNotFound
	}
	val, err := s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: leveldb get %s: %w", key, err)
	}
	return val, nil
}

func (s *LevelDBStore) Set(ctx context.Context, key string, value []byte) error {
	s.clearExpiry(key)
	if err := s.db.Put([]byte(key), value, nil); err != nil {
		return fmt.Errorf("storage: leveldb put %s: %w", key, err)
	}
	return nil
}

func (s *LevelDBStore) SetTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.db.Put([]byte(key), value, nil); err != nil {
		return fmt.Errorf("storage: leveldb put %s: %w", key, err)
	}
	s.mu.Lock()
	s.expiries[key] = time.Now().Add(ttl)
	s.mu.Unlock()
	return nil
}

func (s *LevelDBStore) Exists(ctx context.Context, key string) (bool, error) {
	if s.expired(key) {
		return false, nil
	}
	ok, err := s.db.Has([]byte(key), nil)
	if err != nil {
		return false, fmt.Errorf("storage: leveldb has %s: %w", key, err)
	}
	return ok, nil
}

func (s *LevelDBStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	var keys []string
	for iter.Next() {
		key := string(iter.Key())
		if s.expired(key) {
			continue
		}
		keys = append(keys, key)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("storage: leveldb iterate: %w", err)
	}
	return keys, nil
}

func (s *LevelDBStore) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		val, err := s.Get(ctx, k)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}

func (s *LevelDBStore) expired(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expiries[key]
	return ok && time.Now().After(exp)
}

func (s *LevelDBStore) clearExpiry(key string) {
	s.mu.Lock()
	delete(s.expiries, key)
	s.mu.Unlock()
}

var _ KeyValueStore = (*LevelDBStore)(nil)
