package journal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "_organize_record.json")
	store := NewFileStore()

	in := []OrganizeRecord{
		{Time: time.Now(), Files: []MovedFile{{Original: "/a/x.jpg", New: "/a/JPG/x.jpg"}}},
	}
	if err := store.Save(path, in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	var out []OrganizeRecord
	if err := store.Load(path, &out); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(out) != 1 || len(out[0].Files) != 1 || out[0].Files[0].New != "/a/JPG/x.jpg" {
		t.Errorf("Load() = %+v, want round-tripped record", out)
	}

	// no stray temp files left behind
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("dir has %d entries after save, want 1", len(entries))
	}
}

func TestFileStoreMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore()

	var v []DeleteRecord
	if err := store.Load(filepath.Join(dir, "nope.json"), &v); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) error = %v, want os.ErrNotExist", err)
	}

	bad := filepath.Join(dir, "_delete_record.json")
	if err := os.WriteFile(bad, []byte("{oops"), 0644); err != nil {
		t.Fatal(err)
	}
	log := NewDeleteLog(bad, store, 30)
	if got := log.Records(); got != nil {
		t.Errorf("Records() on corrupt log = %v, want nil", got)
	}
}

func TestOrganizeLogPop(t *testing.T) {
	store := NewMemStore()
	log := NewOrganizeLog("org", store)

	first := OrganizeRecord{ID: "1", Time: time.Now()}
	second := OrganizeRecord{ID: "2", Time: time.Now()}
	if err := log.Append(first); err != nil {
		t.Fatal(err)
	}
	if err := log.Append(second); err != nil {
		t.Fatal(err)
	}

	got, ok, err := log.Pop()
	if err != nil || !ok {
		t.Fatalf("Pop() = %v, %v, %v", got, ok, err)
	}
	if got.ID != "2" {
		t.Errorf("Pop() ID = %q, want most recent", got.ID)
	}
	if remaining := log.Records(); len(remaining) != 1 || remaining[0].ID != "1" {
		t.Errorf("Records() after pop = %+v", remaining)
	}

	if _, _, err := log.Pop(); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := log.Pop(); ok {
		t.Error("Pop() on empty log reported a record")
	}
}

func TestDeleteLogCap(t *testing.T) {
	store := NewMemStore()
	log := NewDeleteLog("del", store, 3)

	for i := 0; i < 5; i++ {
		r := DeleteRecord{OriginalName: string(rune('a' + i)), Time: time.Now()}
		if err := log.Append(r); err != nil {
			t.Fatal(err)
		}
	}

	records := log.Records()
	if len(records) != 3 {
		t.Fatalf("len(Records()) = %d, want 3", len(records))
	}
	// oldest dropped first
	if records[0].OriginalName != "c" || records[2].OriginalName != "e" {
		t.Errorf("Records() = %+v, want c..e", records)
	}
}

func TestDeleteLogCorruptReadsEmpty(t *testing.T) {
	store := NewMemStore()
	log := NewDeleteLog("del", store, 30)

	if err := log.Append(DeleteRecord{OriginalName: "x.jpg"}); err != nil {
		t.Fatal(err)
	}
	store.Corrupt("del")
	if got := log.Records(); got != nil {
		t.Errorf("Records() after corruption = %v, want nil", got)
	}

	// next write recovers the journal
	if err := log.Append(DeleteRecord{OriginalName: "y.jpg"}); err != nil {
		t.Fatal(err)
	}
	if got := log.Records(); len(got) != 1 || got[0].OriginalName != "y.jpg" {
		t.Errorf("Records() after rewrite = %+v", got)
	}
}
