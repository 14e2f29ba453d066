package search

import (
	"context"
	"encoding/json"
	"fmt"

	"marketplace/internal/config"
	"marketplace/internal/domain"

	"github.com/google/uuid"
	"github.com/meilisearch/meilisearch-go"
)

// productDocument is the flattened record pushed to the engine.
type productDocument struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	SKU         string  `json:"sku"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	CategoryID  string  `json:"category_id"`
	Status      string  `json:"status"`
	CreatedAt   int64   `json:"created_at"`
}

// MeiliIndexer delegates indexing and querying to a Meilisearch server.
type MeiliIndexer struct {
	client meilisearch.ServiceManager
	index  string
}

// NewMeiliIndexer creates an indexer against the configured Meilisearch
// host.
func NewMeiliIndexer(cfg config.SearchConfig) *MeiliIndexer {
	opts := []meilisearch.Option{}
	if cfg.APIKey != "" {
		opts = append(opts, meilisearch.WithAPIKey(cfg.APIKey))
	}

	return &MeiliIndexer{
		client: meilisearch.New(cfg.Host, opts...),
		index:  cfg.Index,
	}
}

func (m *MeiliIndexer) Enabled() bool { return true }

// Configure applies the index settings: which attributes can be filtered
// and sorted on. Idempotent; safe to run on every deploy.
func (m *MeiliIndexer) Configure(ctx context.Context) error {
	idx := m.client.Index(m.index)

	if _, err := idx.UpdateFilterableAttributesWithContext(ctx, &[]interface{}{"category_id", "status"}); err != nil {
		return fmt.Errorf("failed to update filterable attributes: %w", err)
	}

	if _, err := idx.UpdateSortableAttributesWithContext(ctx, &[]string{"price", "created_at"}); err != nil {
		return fmt.Errorf("failed to update sortable attributes: %w", err)
	}

	return nil
}

// IndexProducts upserts product documents into the engine
func (m *MeiliIndexer) IndexProducts(ctx context.Context, products []*domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	docs := make([]productDocument, 0, len(products))
	for _, p := range products {
		price, _ := p.Price.Float64()
		docs = append(docs, productDocument{
			ID:          p.ID.String(),
			Name:        p.Name,
			SKU:         p.SKU,
			Description: p.Description,
			Price:       price,
			CategoryID:  p.CategoryID.String(),
			Status:      p.Status,
			CreatedAt:   p.CreatedAt.Unix(),
		})
	}

	primaryKey := "id"
	if _, err := m.client.Index(m.index).AddDocumentsWithContext(ctx, docs, &primaryKey); err != nil {
		return fmt.Errorf("failed to index products: %w", err)
	}

	return nil
}

// DeleteProduct removes a product document from the engine
func (m *MeiliIndexer) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if _, err := m.client.Index(m.index).DeleteDocumentWithContext(ctx, id.String()); err != nil {
		return fmt.Errorf("failed to delete product from index: %w", err)
	}

	return nil
}

// Search queries the engine for active products and returns matching
// product IDs for hydration from the database.
func (m *MeiliIndexer) Search(ctx context.Context, query string, page, pageSize int) ([]uuid.UUID, int, error) {
	resp, err := m.client.Index(m.index).SearchWithContext(ctx, query, &meilisearch.SearchRequest{
		Filter: "status = active",
		Limit:  int64(pageSize),
		Offset: int64((page - 1) * pageSize),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("search query failed: %w", err)
	}

	return hitIDs(resp.Hits), int(resp.EstimatedTotalHits), nil
}

// hitIDs pulls the product UUID out of each raw engine hit, skipping
// anything malformed.
func hitIDs(hits []meilisearch.Hit) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(hits))
	for _, hit := range hits {
		var raw string
		if err := json.Unmarshal(hit["id"], &raw); err != nil {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
