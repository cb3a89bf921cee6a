package lockfile

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestAcquireExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "capture.lock")

	first, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	if first.Path() != path {
		t.Errorf("Path() = %q", first.Path())
	}

	if _, err := Acquire(path); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Acquire() error = %v, want ErrLocked", err)
	}

	if err := first.Release(); err != nil {
		t.Fatal(err)
	}
	again, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire() after release: %v", err)
	}
	if err := again.Release(); err != nil {
		t.Fatal(err)
	}
}
