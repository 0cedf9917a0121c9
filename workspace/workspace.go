// Package workspace manages the on-disk layout of a pricetrack project.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dirs is the standard project layout. data/external holds third-party
// inputs, data/raw holds scraped exports, models and notebooks hold
// analysis artifacts, reports/figures holds generated charts.
var Dirs = []string{
	filepath.Join("data", "external"),
	filepath.Join("data", "raw"),
	"models",
	"notebooks",
	filepath.Join("reports", "figures"),
}

// Init creates the standard layout under root. Existing directories are
// left alone, so Init is safe to run repeatedly. Each leaf directory gets
// a .gitkeep marker so empty directories survive version control.
func Init(root string) error {
	for _, dir := range Dirs {
		full := filepath.Join(root, dir)
		if err := os.MkdirAll(full, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}

		keep := filepath.Join(full, ".gitkeep")
		if _, err := os.Stat(keep); os.IsNotExist(err) {
			if err := os.WriteFile(keep, nil, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", keep, err)
			}
		}
	}
	return nil
}

// DataRaw returns the scraped-data directory under root.
func DataRaw(root string) string {
	return filepath.Join(root, "data", "raw")
}

// DataExternal returns the external-inputs directory under root.
func DataExternal(root string) string {
	return filepath.Join(root, "data", "external")
}

// Models returns the models directory under root.
func Models(root string) string {
	return filepath.Join(root, "models")
}

// HistoryDB returns the default SQLite database path under root.
func HistoryDB(root string) string {
	return filepath.Join(root, "data", "pricetrack.db")
}
