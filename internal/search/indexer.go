package search

import (
	"context"

	"marketplace/internal/domain"

	"github.com/google/uuid"
)

// Indexer pushes catalog records to an external search engine and runs
// queries against it. The application never owns search state beyond
// what it pushes here.
type Indexer interface {
	Configure(ctx context.Context) error
	IndexProducts(ctx context.Context, products []*domain.Product) error
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, query string, page, pageSize int) (ids []uuid.UUID, total int, err error)
	Enabled() bool
}

// NoopIndexer is used when search is disabled; product search falls back
// to the repository's ILIKE query.
type NoopIndexer struct{}

func (NoopIndexer) Configure(ctx context.Context) error { return nil }

func (NoopIndexer) IndexProducts(ctx context.Context, products []*domain.Product) error { return nil }

func (NoopIndexer) DeleteProduct(ctx context.Context, id uuid.UUID) error { return nil }

func (NoopIndexer) Search(ctx context.Context, query string, page, pageSize int) ([]uuid.UUID, int, error) {
	return nil, 0, nil
}

func (NoopIndexer) Enabled() bool { return false }
