package capture

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type memorySink struct {
	source string
	data   []byte
}

func (s *memorySink) Enqueue(source string, data []byte) (string, error) {
	s.source, s.data = source, data
	return "job-1", nil
}

func TestNew(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "captures"), 0, nil)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if store == nil {
		t.Fatal("Store is nil")
	}
	if len(store.List()) != 0 {
		t.Error("Expected empty store")
	}
}

func TestSaveAndLoad(t *testing.T) {
	store, _ := New(t.TempDir(), 0, nil)

	payload := []byte("\x1b@HELLO\n\x1bi")
	entry, err := store.Save("tcp:127.0.0.1:1234", payload)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if entry.ID == "" || entry.Size != len(payload) || entry.MD5 == "" {
		t.Errorf("Unexpected entry %+v", entry)
	}

	data, err := store.Load(entry.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(data) != string(payload) {
		t.Errorf("Expected %q, got %q", payload, data)
	}

	last, err := store.Last()
	if err != nil || string(last) != string(payload) {
		t.Errorf("Expected last payload to match, got %q (%v)", last, err)
	}
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()

	store1, _ := New(dir, 0, nil)
	entry, _ := store1.Save("serial:/dev/ttyS0", []byte("abc"))

	// Reopen and check the index was loaded
	store2, err := New(dir, 0, nil)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}

	got, err := store2.Get(entry.ID)
	if err != nil {
		t.Fatalf("Expected entry after reopen: %v", err)
	}
	if got.Source != "serial:/dev/ttyS0" || got.MD5 != entry.MD5 {
		t.Errorf("Unexpected entry after reopen %+v", got)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	dir := t.TempDir()
	store, _ := New(dir, 0, nil)
	entry, _ := store.Save("a", []byte("original"))

	os.WriteFile(filepath.Join(dir, entry.ID+".bin"), []byte("tampered"), 0o644)

	if _, err := store.Load(entry.ID); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	store, _ := New(t.TempDir(), 0, nil)

	if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.Last(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for empty store, got %v", err)
	}
}

func TestMaxEntries(t *testing.T) {
	dir := t.TempDir()
	store, _ := New(dir, 2, nil)

	first, _ := store.Save("a", []byte("1"))
	store.Save("a", []byte("2"))
	store.Save("a", []byte("3"))

	if n := len(store.List()); n != 2 {
		t.Fatalf("Expected 2 entries, got %d", n)
	}
	if _, err := store.Get(first.ID); !errors.Is(err, ErrNotFound) {
		t.Error("Expected oldest entry to be trimmed")
	}
	if _, err := os.Stat(filepath.Join(dir, first.ID+".bin")); !os.IsNotExist(err) {
		t.Error("Expected oldest payload file to be removed")
	}
}

func TestRemove(t *testing.T) {
	store, _ := New(t.TempDir(), 0, nil)
	entry, _ := store.Save("a", []byte("x"))

	if !store.Remove(entry.ID) {
		t.Fatal("Expected remove to succeed")
	}
	if store.Remove(entry.ID) {
		t.Error("Expected second remove to fail")
	}
}

func TestReplay(t *testing.T) {
	store, _ := New(t.TempDir(), 0, nil)
	entry, _ := store.Save("tcp:1.2.3.4:5", []byte("REPLAY\n"))

	sink := &memorySink{}
	jobID, err := store.Replay(entry.ID, sink)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	if jobID != "job-1" || sink.source != "replay:"+entry.ID || string(sink.data) != "REPLAY\n" {
		t.Errorf("Unexpected replay: job %s source %s data %q", jobID, sink.source, sink.data)
	}
}
