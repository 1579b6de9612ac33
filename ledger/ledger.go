package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"fiatmarket/storage"
)

var (
	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("ledger: object not found")
	// ErrConflict indicates an atomic commit lost an optimistic-concurrency
	// race. Callers may retry the whole transaction.
	ErrConflict = errors.New("ledger: version conflict")
	// ErrUnavailable indicates a transient backend failure.
	ErrUnavailable = errors.New("ledger: backend unavailable")
)

// ObjectID identifies a versioned object.
type ObjectID [32]byte

// Object is a versioned record. Version starts at 1 on first write and
// increments on every update; 0 never appears on a stored object.
type Object struct {
	ID      ObjectID
	Version uint64
	Data    []byte
}

type storedObject struct {
	Version uint64
	Data    []byte
}

// Store provides atomic multi-object transactions over a key-value backend.
// Commit order is serialised by a store-level mutex; staleness between a
// transaction's reads and its commit is detected through version fencing.
type Store struct {
	db storage.Database

	commitMu sync.Mutex
}

// NewStore wraps the supplied database in a versioned object store.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) load(id ObjectID) (*storedObject, error) {
	raw, err := s.db.Get(id[:])
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	obj := new(storedObject)
	if err := rlp.DecodeBytes(raw, obj); err != nil {
		return nil, fmt.Errorf("ledger: decode object %x: %w", id[:4], err)
	}
	return obj, nil
}

// GetObject reads a single object outside any transaction scope.
func (s *Store) GetObject(id ObjectID) (*Object, error) {
	stored, err := s.load(id)
	if err != nil {
		return nil, err
	}
	return &Object{ID: id, Version: stored.Version, Data: append([]byte(nil), stored.Data...)}, nil
}

// ObjectResult pairs an object fetch with its per-id outcome.
type ObjectResult struct {
	Object *Object
	Err    error
}

// GetObjects fetches each id independently. A failed fetch is reported in its
// slot rather than aborting the whole batch; read paths decide how to degrade.
func (s *Store) GetObjects(ids []ObjectID) []ObjectResult {
	results := make([]ObjectResult, len(ids))
	for i, id := range ids {
		obj, err := s.GetObject(id)
		results[i] = ObjectResult{Object: obj, Err: err}
	}
	return results
}

// View runs fn against a read-only transaction. Reads are individually
// current but not fenced against each other; writes are rejected.
func (s *Store) View(fn func(tx *Txn) error) error {
	tx := &Txn{store: s, readOnly: true, reads: make(map[ObjectID]uint64)}
	return fn(tx)
}

// Update runs fn against a buffering transaction and commits all staged
// writes atomically. Every object read during fn is fenced on its observed
// version at commit time; a mismatch aborts the whole batch with ErrConflict
// and no partial state is applied.
func (s *Store) Update(fn func(tx *Txn) error) error {
	tx := &Txn{
		store:  s,
		reads:  make(map[ObjectID]uint64),
		writes: make(map[ObjectID]*pendingWrite),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *Txn) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	for id, observed := range tx.reads {
		current, err := s.load(id)
		switch {
		case errors.Is(err, ErrNotFound):
			if observed != 0 {
				return ErrConflict
			}
		case err != nil:
			return err
		default:
			if current.Version != observed {
				return ErrConflict
			}
		}
	}

	batch := make([]storage.BatchOp, 0, len(tx.writes))
	for id, w := range tx.writes {
		if w.delete {
			batch = append(batch, storage.BatchOp{Key: append([]byte(nil), id[:]...)})
			continue
		}
		next := uint64(1)
		if observed, ok := tx.reads[id]; ok {
			next = observed + 1
		} else if current, err := s.load(id); err == nil {
			next = current.Version + 1
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		encoded, err := rlp.EncodeToBytes(&storedObject{Version: next, Data: w.data})
		if err != nil {
			return fmt.Errorf("ledger: encode object %x: %w", id[:4], err)
		}
		batch = append(batch, storage.BatchOp{Key: append([]byte(nil), id[:]...), Value: encoded})
	}
	if len(batch) == 0 {
		return nil
	}
	if err := s.db.Apply(batch); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

type pendingWrite struct {
	data   []byte
	delete bool
}

// Txn stages reads and writes for one atomic submission.
type Txn struct {
	store    *Store
	readOnly bool
	reads    map[ObjectID]uint64
	writes   map[ObjectID]*pendingWrite
}

// Get returns the object payload, honouring writes already staged in this
// transaction. The first read of each id records the version used for
// commit-time fencing; a miss is fenced on continued absence.
func (tx *Txn) Get(id ObjectID) ([]byte, error) {
	if !tx.readOnly {
		if w, ok := tx.writes[id]; ok {
			if w.delete {
				return nil, ErrNotFound
			}
			return append([]byte(nil), w.data...), nil
		}
	}
	stored, err := tx.store.load(id)
	if errors.Is(err, ErrNotFound) {
		if _, seen := tx.reads[id]; !seen {
			tx.reads[id] = 0
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if _, seen := tx.reads[id]; !seen {
		tx.reads[id] = stored.Version
	}
	return append([]byte(nil), stored.Data...), nil
}

// Put stages an object write.
func (tx *Txn) Put(id ObjectID, data []byte) error {
	if tx.readOnly {
		return fmt.Errorf("ledger: put on read-only transaction")
	}
	tx.writes[id] = &pendingWrite{data: append([]byte(nil), data...)}
	return nil
}

// Delete stages an object removal.
func (tx *Txn) Delete(id ObjectID) error {
	if tx.readOnly {
		return fmt.Errorf("ledger: delete on read-only transaction")
	}
	tx.writes[id] = &pendingWrite{delete: true}
	return nil
}
