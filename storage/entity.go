// Package storage provides entity storage for pricetrack using NATS KV.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// EntityType represents the type of entity stored in KV.
type EntityType string

const (
	EntityTypeProduct EntityType = "product"
	EntityTypeRun     EntityType = "run"
)

// Bucket names for each entity type.
const (
	BucketProducts = "PRICETRACK_PRODUCTS"
	BucketRuns     = "PRICETRACK_RUNS"
)

// EntityID represents a typed entity identifier.
type EntityID struct {
	Type EntityType
	ID   string
}

// String returns the string representation of the entity ID.
func (e EntityID) String() string {
	return fmt.Sprintf("%s:%s", e.Type, e.ID)
}

// ParseEntityID parses an entity ID string into its components.
func ParseEntityID(s string) (EntityID, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return EntityID{}, fmt.Errorf("invalid entity ID format: %s", s)
	}
	entityType := EntityType(parts[0])
	switch entityType {
	case EntityTypeProduct, EntityTypeRun:
		return EntityID{Type: entityType, ID: parts[1]}, nil
	default:
		return EntityID{}, fmt.Errorf("unknown entity type: %s", parts[0])
	}
}

// NewEntityID generates a new unique entity ID for the given type.
func NewEntityID(t EntityType) EntityID {
	return EntityID{
		Type: t,
		ID:   uuid.New().String(),
	}
}

// RunStatus represents the status of a scrape run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Product represents a tracked product. Products are keyed by slug so a
// repeated scrape of the same URL updates the existing entry.
type Product struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Brand        string    `json:"brand"`
	Domain       string    `json:"domain"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified,omitzero"`
	ContentHash  string    `json:"content_hash,omitempty"`
	Snapshot     string    `json:"snapshot,omitempty"`
	PointCount   int       `json:"point_count"`
	Synthetic    bool      `json:"synthetic"`
	FirstSeen    time.Time `json:"first_seen"`
	LastScraped  time.Time `json:"last_scraped"`
}

// Run records the accounting for one scrape run.
type Run struct {
	ID           string     `json:"id"`
	Status       RunStatus  `json:"status"`
	URLsTotal    int        `json:"urls_total"`
	Succeeded    int        `json:"succeeded"`
	Failed       int        `json:"failed"`
	Unchanged    int        `json:"unchanged"`
	PointsStored int        `json:"points_stored"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Store provides entity storage operations backed by NATS KV.
type Store struct {
	products jetstream.KeyValue
	runs     jetstream.KeyValue
}

// NewStore creates a new Store with the given JetStream context.
// It creates the necessary KV buckets if they don't exist.
func NewStore(ctx context.Context, js jetstream.JetStream) (*Store, error) {
	products, err := getOrCreateBucket(ctx, js, BucketProducts)
	if err != nil {
		return nil, fmt.Errorf("create products bucket: %w", err)
	}

	runs, err := getOrCreateBucket(ctx, js, BucketRuns)
	if err != nil {
		return nil, fmt.Errorf("create runs bucket: %w", err)
	}

	return &Store{
		products: products,
		runs:     runs,
	}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Pricetrack %s storage", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

// PutProduct stores a product keyed by its slug, creating or replacing it.
// A product without an ID gets a fresh entity ID and FirstSeen timestamp.
func (s *Store) PutProduct(ctx context.Context, p *Product) error {
	if p.Slug == "" {
		return fmt.Errorf("product slug is required")
	}

	now := time.Now()
	if p.ID == "" {
		p.ID = NewEntityID(EntityTypeProduct).String()
	}
	if p.FirstSeen.IsZero() {
		p.FirstSeen = now
	}
	p.LastScraped = now

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}

	if _, err := s.products.Put(ctx, p.Slug, data); err != nil {
		return fmt.Errorf("store product: %w", err)
	}

	return nil
}

// GetProduct retrieves a product by slug.
func (s *Store) GetProduct(ctx context.Context, slug string) (*Product, error) {
	entry, err := s.products.Get(ctx, slug)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	var p Product
	if err := json.Unmarshal(entry.Value(), &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}

	return &p, nil
}

// ListProducts returns all stored products.
func (s *Store) ListProducts(ctx context.Context) ([]*Product, error) {
	keys, err := s.products.Keys(ctx)
	if err != nil {
		if err == jetstream.ErrNoKeysFound {
			return nil, nil
		}
		return nil, fmt.Errorf("list product keys: %w", err)
	}

	products := make([]*Product, 0, len(keys))
	for _, key := range keys {
		entry, err := s.products.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var p Product
		if err := json.Unmarshal(entry.Value(), &p); err != nil {
			continue
		}
		products = append(products, &p)
	}

	return products, nil
}

// DeleteProduct removes a product by slug.
func (s *Store) DeleteProduct(ctx context.Context, slug string) error {
	if _, err := s.products.Get(ctx, slug); err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("get product: %w", err)
	}
	if err := s.products.Delete(ctx, slug); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

// CreateRun creates a new run in running status and returns its ID.
func (s *Store) CreateRun(ctx context.Context, r *Run) (EntityID, error) {
	id := NewEntityID(EntityTypeRun)
	r.ID = id.String()
	r.Status = RunStatusRunning
	r.StartedAt = time.Now()

	data, err := json.Marshal(r)
	if err != nil {
		return EntityID{}, fmt.Errorf("marshal run: %w", err)
	}

	if _, err := s.runs.Create(ctx, id.ID, data); err != nil {
		return EntityID{}, fmt.Errorf("store run: %w", err)
	}

	return id, nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id EntityID) (*Run, error) {
	if id.Type != EntityTypeRun {
		return nil, fmt.Errorf("invalid entity type: expected run, got %s", id.Type)
	}

	entry, err := s.runs.Get(ctx, id.ID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}

	var r Run
	if err := json.Unmarshal(entry.Value(), &r); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}

	return &r, nil
}

// FinishRun marks a run complete or failed and persists its final counters.
func (s *Store) FinishRun(ctx context.Context, r *Run, status RunStatus) error {
	id, err := ParseEntityID(r.ID)
	if err != nil {
		return fmt.Errorf("parse run ID: %w", err)
	}

	now := time.Now()
	r.Status = status
	r.FinishedAt = &now

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	if _, err := s.runs.Put(ctx, id.ID, data); err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	return nil
}

// ListRuns returns all recorded scrape runs.
func (s *Store) ListRuns(ctx context.Context) ([]*Run, error) {
	keys, err := s.runs.Keys(ctx)
	if err != nil {
		if err == jetstream.ErrNoKeysFound {
			return nil, nil
		}
		return nil, fmt.Errorf("list run keys: %w", err)
	}

	runs := make([]*Run, 0, len(keys))
	for _, key := range keys {
		entry, err := s.runs.Get(ctx, key)
		if err != nil {
			continue
		}
		var r Run
		if err := json.Unmarshal(entry.Value(), &r); err != nil {
			continue
		}
		runs = append(runs, &r)
	}

	return runs, nil
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "key not found")
}
