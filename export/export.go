// Package export writes collected price histories to files under the
// workspace data directory.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tracklab/pricetrack/history"
	"github.com/tracklab/pricetrack/storage"
)

// Format is an export format identifier.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// FormatInfo provides metadata about an export format.
type FormatInfo struct {
	// Name is the format identifier.
	Name Format

	// MIMEType is the standard MIME type.
	MIMEType string

	// Extension is the file extension (with dot).
	Extension string

	// Description describes the format.
	Description string
}

// FormatRegistry contains metadata for all supported formats.
var FormatRegistry = map[Format]FormatInfo{
	FormatCSV: {
		Name:        FormatCSV,
		MIMEType:    "text/csv",
		Extension:   ".csv",
		Description: "CSV - comma-separated price history rows",
	},
	FormatJSON: {
		Name:        FormatJSON,
		MIMEType:    "application/json",
		Extension:   ".json",
		Description: "JSON - structured price history document",
	},
}

// GetFormatInfo returns metadata for a format.
func GetFormatInfo(format Format) (FormatInfo, bool) {
	info, ok := FormatRegistry[format]
	return info, ok
}

// ParseFormat validates a format string.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	if _, ok := FormatRegistry[f]; !ok {
		return "", fmt.Errorf("unsupported export format: %s", s)
	}
	return f, nil
}

// Exporter writes price histories from the repository to disk.
type Exporter struct {
	repo   *history.Repository
	outDir string
}

// NewExporter creates an Exporter writing into outDir. The directory is
// created on first export if missing.
func NewExporter(repo *history.Repository, outDir string) *Exporter {
	return &Exporter{
		repo:   repo,
		outDir: outDir,
	}
}

// ExportAll writes one combined file containing every product's history.
// CSV rows carry title, brand, date and price so the file is self-describing.
// Returns the path written and the number of data rows.
func (e *Exporter) ExportAll(ctx context.Context, products []*storage.Product, format Format) (string, int, error) {
	if err := os.MkdirAll(e.outDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create export directory: %w", err)
	}

	info, ok := GetFormatInfo(format)
	if !ok {
		return "", 0, fmt.Errorf("unsupported export format: %s", format)
	}
	path := filepath.Join(e.outDir, "price_history"+info.Extension)

	switch format {
	case FormatCSV:
		rows, err := e.writeAllCSV(ctx, path, products)
		return path, rows, err
	case FormatJSON:
		rows, err := e.writeAllJSON(ctx, path, products)
		return path, rows, err
	default:
		return "", 0, fmt.Errorf("unsupported export format: %s", format)
	}
}

func (e *Exporter) writeAllCSV(ctx context.Context, path string, products []*storage.Product) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"title", "brand", "date", "price"}); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	for _, p := range products {
		points, err := e.repo.Points(ctx, p.Slug)
		if err != nil {
			return rows, fmt.Errorf("load points for %s: %w", p.Slug, err)
		}
		for _, pt := range points {
			record := []string{p.Title, p.Brand, pt.Date, formatPrice(pt.Price)}
			if err := w.Write(record); err != nil {
				return rows, fmt.Errorf("write row: %w", err)
			}
			rows++
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return rows, fmt.Errorf("flush csv: %w", err)
	}
	return rows, nil
}

// productDocument is the JSON export shape for one product.
type productDocument struct {
	Title  string          `json:"title"`
	Brand  string          `json:"brand"`
	URL    string          `json:"url"`
	Points []history.Point `json:"points"`
}

func (e *Exporter) writeAllJSON(ctx context.Context, path string, products []*storage.Product) (int, error) {
	docs := make([]productDocument, 0, len(products))
	rows := 0
	for _, p := range products {
		points, err := e.repo.Points(ctx, p.Slug)
		if err != nil {
			return 0, fmt.Errorf("load points for %s: %w", p.Slug, err)
		}
		docs = append(docs, productDocument{
			Title:  p.Title,
			Brand:  p.Brand,
			URL:    p.URL,
			Points: points,
		})
		rows += len(points)
	}

	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write export file: %w", err)
	}
	return rows, nil
}

// ExportProduct writes one product's history as a two-column CSV file named
// after the product slug. Returns the path written.
func (e *Exporter) ExportProduct(ctx context.Context, p *storage.Product) (string, error) {
	if err := os.MkdirAll(e.outDir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	points, err := e.repo.Points(ctx, p.Slug)
	if err != nil {
		return "", fmt.Errorf("load points for %s: %w", p.Slug, err)
	}

	path := filepath.Join(e.outDir, fileNameForSlug(p.Slug))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Date", "Price"}); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	for _, pt := range points {
		if err := w.Write([]string{pt.Date, formatPrice(pt.Price)}); err != nil {
			return "", fmt.Errorf("write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return path, nil
}

// fileNameForSlug derives a CSV file name from a product slug, stripping
// the "product.web." prefix.
func fileNameForSlug(slug string) string {
	name := strings.TrimPrefix(slug, "product.web.")
	if name == "" {
		name = "product"
	}
	return name + ".csv"
}

// formatPrice renders a price without trailing zeros so whole-number prices
// export as integers.
func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
