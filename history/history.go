// Package history persists price histories in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Point is one dated price observation for a product.
type Point struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// Stats summarizes the stored history of a single product.
type Stats struct {
	ProductID string
	Title     string
	Brand     string
	Points    int
	MinPrice  float64
	MaxPrice  float64
	AvgPrice  float64
	// CurrentPrice is the price at the most recent date on record.
	CurrentPrice float64
	// Change and ChangePct compare the current price to the earliest one.
	Change    float64
	ChangePct float64
	FirstDate string
	LastDate  string
}

// computeChange fills Change and ChangePct from the first and current price.
func (s *Stats) computeChange(firstPrice float64) {
	if s.Points == 0 {
		return
	}
	s.Change = s.CurrentPrice - firstPrice
	if firstPrice != 0 {
		s.ChangePct = s.Change / firstPrice * 100
	}
}

// Repository stores price points keyed by product and date.
type Repository struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		brand TEXT NOT NULL,
		synthetic INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS price_points (
		product_id TEXT NOT NULL,
		date TEXT NOT NULL,
		price REAL NOT NULL,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (product_id, date),
		FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_price_points_product ON price_points(product_id);
	CREATE INDEX IF NOT EXISTS idx_price_points_date ON price_points(date);
	`

	_, err := r.db.Exec(schema)
	return err
}

// UpsertProduct inserts or updates product metadata.
func (r *Repository) UpsertProduct(ctx context.Context, id, url, title, brand string, synthetic bool) error {
	syn := 0
	if synthetic {
		syn = 1
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, url, title, brand, synthetic, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			title = excluded.title,
			brand = excluded.brand,
			synthetic = excluded.synthetic,
			updated_at = CURRENT_TIMESTAMP
	`, id, url, title, brand, syn)

	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

// UpsertPoints stores price points for a product. A point already stored
// for the same date is overwritten, so re-scraping a URL is idempotent.
// Returns the number of points written.
func (r *Repository) UpsertPoints(ctx context.Context, productID string, points []Point) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_points (product_id, date, price, recorded_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(product_id, date) DO UPDATE SET
			price = excluded.price,
			recorded_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, p := range points {
		if p.Date == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, productID, p.Date, p.Price); err != nil {
			return 0, fmt.Errorf("failed to upsert point %s: %w", p.Date, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return written, nil
}

// Points returns a product's full history ordered by date.
func (r *Repository) Points(ctx context.Context, productID string) ([]Point, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, price FROM price_points
		WHERE product_id = ?
		ORDER BY date ASC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.Date, &p.Price); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating points: %w", err)
	}
	return points, nil
}

// PointsSince returns a product's history from the given date onward.
// Dates are ISO strings, so lexicographic comparison is chronological.
func (r *Repository) PointsSince(ctx context.Context, productID, since string) ([]Point, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, price FROM price_points
		WHERE product_id = ? AND date >= ?
		ORDER BY date ASC
	`, productID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.Date, &p.Price); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating points: %w", err)
	}
	return points, nil
}

// ProductStats computes min/max/avg and the covered date range for a product.
func (r *Repository) ProductStats(ctx context.Context, productID string) (*Stats, error) {
	var s Stats
	var title, brand sql.NullString
	var minP, maxP, avgP, firstP, lastP sql.NullFloat64
	var first, last sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT p.title, p.brand,
			COUNT(pp.date), MIN(pp.price), MAX(pp.price), AVG(pp.price),
			MIN(pp.date), MAX(pp.date),
			(SELECT price FROM price_points WHERE product_id = p.id ORDER BY date ASC LIMIT 1),
			(SELECT price FROM price_points WHERE product_id = p.id ORDER BY date DESC LIMIT 1)
		FROM products p
		LEFT JOIN price_points pp ON pp.product_id = p.id
		WHERE p.id = ?
		GROUP BY p.id
	`, productID).Scan(&title, &brand, &s.Points, &minP, &maxP, &avgP, &first, &last, &firstP, &lastP)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}

	s.ProductID = productID
	s.Title = title.String
	s.Brand = brand.String
	s.MinPrice = minP.Float64
	s.MaxPrice = maxP.Float64
	s.AvgPrice = avgP.Float64
	s.CurrentPrice = lastP.Float64
	s.FirstDate = first.String
	s.LastDate = last.String
	s.computeChange(firstP.Float64)
	return &s, nil
}

// Summary returns stats for every product, ordered by title.
func (r *Repository) Summary(ctx context.Context) ([]Stats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.title, p.brand,
			COUNT(pp.date), COALESCE(MIN(pp.price), 0), COALESCE(MAX(pp.price), 0),
			COALESCE(AVG(pp.price), 0), COALESCE(MIN(pp.date), ''), COALESCE(MAX(pp.date), ''),
			COALESCE((SELECT price FROM price_points WHERE product_id = p.id ORDER BY date ASC LIMIT 1), 0),
			COALESCE((SELECT price FROM price_points WHERE product_id = p.id ORDER BY date DESC LIMIT 1), 0)
		FROM products p
		LEFT JOIN price_points pp ON pp.product_id = p.id
		GROUP BY p.id
		ORDER BY p.title ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}
	defer rows.Close()

	var out []Stats
	for rows.Next() {
		var s Stats
		var firstP float64
		if err := rows.Scan(&s.ProductID, &s.Title, &s.Brand, &s.Points,
			&s.MinPrice, &s.MaxPrice, &s.AvgPrice, &s.FirstDate, &s.LastDate,
			&firstP, &s.CurrentPrice); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		s.computeChange(firstP)
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary: %w", err)
	}
	return out, nil
}

// DeleteProduct removes a product and its points.
func (r *Repository) DeleteProduct(ctx context.Context, productID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, productID)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return nil
}

// LastRecorded returns the most recent recorded_at timestamp for a product,
// or the zero time when no points exist.
func (r *Repository) LastRecorded(ctx context.Context, productID string) (time.Time, error) {
	var ts sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(recorded_at) FROM price_points WHERE product_id = ?
	`, productID).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query last recorded: %w", err)
	}
	if !ts.Valid || ts.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", ts.String)
	if err != nil {
		// SQLite may return RFC3339 depending on how the value was written
		t, err = time.Parse(time.RFC3339, ts.String)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", ts.String, err)
		}
	}
	return t, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}
