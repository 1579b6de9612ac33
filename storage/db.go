package storage

import (
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// ErrKeyNotFound is returned by Get when no value exists for the key. Both
// backends normalise their native miss signal to this error so callers can
// branch on it with errors.Is.
var ErrKeyNotFound = errors.New("storage: key not found")

// BatchOp describes a single mutation inside an atomic batch. A nil Value
// marks a deletion.
type BatchOp struct {
	Key   []byte
	Value []byte
}

// Database is a generic interface for a key-value store. The ledger layer
// builds its versioned object model on top of it, so backends only need
// point reads and atomic batch writes.
type Database interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Apply(batch []BatchOp) error
	Close() error
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

// Apply installs every operation in the batch under a single lock so readers
// never observe a partially applied batch.
func (db *MemDB) Apply(batch []BatchOp) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, op := range batch {
		if op.Value == nil {
			delete(db.data, string(op.Key))
			continue
		}
		value := make([]byte, len(op.Value))
		copy(value, op.Value)
		db.data[string(op.Key)] = value
	}
	return nil
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() error { return nil }

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	return value, err
}

func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

// Apply writes the batch through a native LevelDB batch so a crash mid-commit
// cannot leave a subset of the operations on disk.
func (ldb *LevelDB) Apply(batch []BatchOp) error {
	wb := new(leveldb.Batch)
	for _, op := range batch {
		if op.Value == nil {
			wb.Delete(op.Key)
			continue
		}
		wb.Put(op.Key, op.Value)
	}
	return ldb.db.Write(wb, nil)
}

// Close closes the database connection.
func (ldb *LevelDB) Close() error {
	return ldb.db.Close()
}
