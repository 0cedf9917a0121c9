package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInit(t *testing.T) {
	root := t.TempDir()

	if err := Init(root); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, dir := range Dirs {
		full := filepath.Join(root, dir)
		info, err := os.Stat(full)
		if err != nil {
			t.Errorf("expected directory %s: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("expected %s to be a directory", dir)
		}

		if _, err := os.Stat(filepath.Join(full, ".gitkeep")); err != nil {
			t.Errorf("expected .gitkeep in %s: %v", dir, err)
		}
	}
}

func TestInitIdempotent(t *testing.T) {
	root := t.TempDir()

	if err := Init(root); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Drop a file into an existing directory and re-run
	marker := filepath.Join(root, "data", "raw", "existing.csv")
	if err := os.WriteFile(marker, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write marker: %v", err)
	}

	if err := Init(root); err != nil {
		t.Fatalf("unexpected error on re-run: %v", err)
	}

	if _, err := os.Stat(marker); err != nil {
		t.Errorf("expected existing file to survive re-init: %v", err)
	}
}

func TestPathHelpers(t *testing.T) {
	if got := DataRaw("/proj"); got != filepath.Join("/proj", "data", "raw") {
		t.Errorf("unexpected DataRaw: %s", got)
	}
	if got := HistoryDB("/proj"); got != filepath.Join("/proj", "data", "pricetrack.db") {
		t.Errorf("unexpected HistoryDB: %s", got)
	}
}
