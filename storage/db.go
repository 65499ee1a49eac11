package storage

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	gethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store that also hosts the
// node store backing the state trie. This allows the ledger to use any
// backend (in-memory or persistent).
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	TrieDB() *triedb.Database
	Close() // A way to gracefully shut down the database connection.
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu     sync.RWMutex
	data   map[string][]byte
	trieDB *triedb.Database
}

func NewMemDB() *MemDB {
	return &MemDB{
		data:   make(map[string][]byte),
		trieDB: triedb.NewDatabase(rawdb.NewMemoryDatabase(), triedb.HashDefaults),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// TrieDB returns the in-memory trie node store.
func (db *MemDB) TrieDB() *triedb.Database {
	return db.trieDB
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

// --- Persistent DB ---

const (
	levelDBCacheMB     = 64
	levelDBOpenHandles = 256
)

// LevelDB is a persistent key-value store using LevelDB. Plain keys and trie
// nodes share the same database.
type LevelDB struct {
	kv     *gethleveldb.Database
	trieDB *triedb.Database
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	kv, err := gethleveldb.NewCustom(path, "crowdsale/db", func(options *opt.Options) {
		options.BlockCacheCapacity = levelDBCacheMB / 2 * opt.MiB
		options.WriteBuffer = levelDBCacheMB / 4 * opt.MiB
		options.OpenFilesCacheCapacity = levelDBOpenHandles
	})
	if err != nil {
		return nil, err
	}
	var disk ethdb.Database = rawdb.NewDatabase(kv)
	return &LevelDB{
		kv:     kv,
		trieDB: triedb.NewDatabase(disk, triedb.HashDefaults),
	}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.kv.Put(key, value)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.kv.Get(key)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// TrieDB returns the trie node store layered over the same database.
func (ldb *LevelDB) TrieDB() *triedb.Database {
	return ldb.trieDB
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	_ = ldb.trieDB.Close()
	_ = ldb.kv.Close()
}
