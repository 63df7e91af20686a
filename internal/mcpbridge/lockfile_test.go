package mcpbridge

import (
	"os"
	"testing"
)

func TestWriteThenReadLockRoundTrip(t *testing.T) {
	dir := t.TempDir()
	written, err := WriteLock(dir, "127.0.0.1:4000")
	if err != nil {
		t.Fatalf("write lock: %v", err)
	}
	read, ok := ReadLock(dir)
	if !ok {
		t.Fatal("expected a live lock to be found")
	}
	if read.Address != written.Address || read.PID != written.PID {
		t.Fatalf("round trip mismatch: wrote %+v read %+v", written, read)
	}
}

func TestReadLockMissingFileReportsAbsent(t *testing.T) {
	dir := t.TempDir()
	if _, ok := ReadLock(dir); ok {
		t.Fatal("expected no lock in an empty directory")
	}
}

func TestReadLockDeadPIDIsTreatedAsStale(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteLock(dir, "127.0.0.1:4000"); err != nil {
		t.Fatalf("write lock: %v", err)
	}
	// Overwrite with an unused high PID unlikely to be alive.
	data := []byte(`{"pid": 999999, "address": "127.0.0.1:4000", "started_at": "2020-01-01T00:00:00Z"}`)
	if err := os.WriteFile(lockPath(dir), data, 0o644); err != nil {
		t.Fatalf("overwrite lock: %v", err)
	}
	if _, ok := ReadLock(dir); ok {
		t.Fatal("expected dead-PID lock to be treated as stale")
	}
	if _, err := os.Stat(lockPath(dir)); !os.IsNotExist(err) {
		t.Fatal("expected stale lock file to be removed")
	}
}

func TestReadLockCorruptJSONIsTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(lockPath(dir), []byte("not json"), 0o644); err != nil {
		t.Fatalf("write corrupt lock: %v", err)
	}
	if _, ok := ReadLock(dir); ok {
		t.Fatal("expected corrupt lock file to report absent")
	}
}
