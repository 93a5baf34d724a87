package database

import (
	"testing"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenFreshDatabaseBootstrapsMetaPage(t *testing.T) {
	db := openTestDB(t)
	if db.Tree == nil {
		t.Fatal("expected B+-tree to be open")
	}
	if db.LSM == nil {
		t.Fatal("expected LSM tree to be open")
	}
}

func TestInsertReadThroughBTree(t *testing.T) {
	db := openTestDB(t)

	tx, err := db.Txns.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Tree.Insert(tx, []byte("hello"), []byte("world")); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Txns.Precommit(tx); err != nil {
		t.Fatal(err)
	}
	if err := db.Txns.CommitWait(tx); err != nil {
		t.Fatal(err)
	}

	got, err := db.Tree.Read([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "world" {
		t.Fatalf("got %q, want world", got)
	}
}

func TestLSMWriteRead(t *testing.T) {
	db := openTestDB(t)

	if err := db.LSM.Write([]byte("k"), []byte("v"), false); err != nil {
		t.Fatal(err)
	}
	got, err := db.LSM.Read([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v" {
		t.Fatalf("got %q, want v", got)
	}
}

func TestReopenExistingDatabaseRunsRecovery(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(Config{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	tx, err := db.Txns.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Tree.Insert(tx, []byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Txns.Precommit(tx); err != nil {
		t.Fatal(err)
	}
	if err := db.Txns.CommitWait(tx); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db2, err := Open(Config{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer db2.Close()

	got, err := db2.Tree.Read([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v" {
		t.Fatalf("got %q, want v", got)
	}
}
