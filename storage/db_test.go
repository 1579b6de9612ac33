package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func testDatabase(t *testing.T, db Database) {
	t.Helper()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	ok, err := db.Has([]byte("missing"))
	if err != nil || ok {
		t.Fatalf("missing key must report absent")
	}

	batch := []BatchOp{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
	}
	if err := db.Apply(batch); err != nil {
		t.Fatalf("apply: %v", err)
	}
	value, err := db.Get([]byte("a"))
	if err != nil || string(value) != "1" {
		t.Fatalf("expected a=1, got %q (%v)", value, err)
	}

	// A nil value deletes.
	if err := db.Apply([]BatchOp{{Key: []byte("a")}}); err != nil {
		t.Fatalf("apply delete: %v", err)
	}
	if _, err := db.Get([]byte("a")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("deleted key must be absent, got %v", err)
	}
	ok, err = db.Has([]byte("b"))
	if err != nil || !ok {
		t.Fatalf("untouched key must remain")
	}
}

func TestMemDB(t *testing.T) {
	testDatabase(t, NewMemDB())
}

func TestMemDBCopiesOnRead(t *testing.T) {
	db := NewMemDB()
	if err := db.Apply([]BatchOp{{Key: []byte("k"), Value: []byte("value")}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got[0] = 'X'
	again, err := db.Get([]byte("k"))
	if err != nil || string(again) != "value" {
		t.Fatalf("stored value must not alias reads, got %q", again)
	}
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	testDatabase(t, db)
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := NewLevelDB(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Apply([]BatchOp{{Key: []byte("k"), Value: []byte("v")}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewLevelDB(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	value, err := reopened.Get([]byte("k"))
	if err != nil || string(value) != "v" {
		t.Fatalf("expected persisted value, got %q (%v)", value, err)
	}
}
