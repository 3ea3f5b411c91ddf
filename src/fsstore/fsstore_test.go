package fsstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteAndReadJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "record.json")

	in := record{Name: "alpha", Count: 3}
	if err := WriteJSONAtomic(path, in); err != nil {
		t.Fatalf("WriteJSONAtomic failed: %v", err)
	}

	var out record
	found, err := ReadJSON(path, &out)
	if err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if !found {
		t.Fatal("expected record found")
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestReadJSONMissingFile(t *testing.T) {
	var out record
	found, err := ReadJSON(filepath.Join(t.TempDir(), "absent.json"), &out)
	if err != nil {
		t.Fatalf("expected nil error for missing file, got %v", err)
	}
	if found {
		t.Fatal("expected not found")
	}
}

func TestReadJSONCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	var out record
	if _, err := ReadJSON(path, &out); !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("expected ErrDecodeFailed, got %v", err)
	}
}

func TestWriteJSONAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "record.json")

	for i := 0; i < 5; i++ {
		if err := WriteJSONAtomic(path, record{Count: i}); err != nil {
			t.Fatalf("WriteJSONAtomic failed: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "record.json" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected only record.json, got %v", names)
	}
}

func TestWithLockSerializesWriters(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "record.lck")

	var mu sync.Mutex
	inside := 0
	maxInside := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(context.Background(), lockPath, func() error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				time.Sleep(2 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("WithLock failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("expected one writer inside the lock at a time, observed %d", maxInside)
	}
}

func TestWithLockHonoursContext(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "record.lck")

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = WithLock(context.Background(), lockPath, func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	err := WithLock(ctx, lockPath, func() error { return nil })
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}
