package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/queue"
	"marketplace/internal/repository"
	"marketplace/internal/search"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrNotProductOwner = errors.New("product belongs to another seller")

// ProductInput carries the writable product fields.
type ProductInput struct {
	CategoryID   uuid.UUID
	Name         string
	SKU          string
	Description  string
	Price        decimal.Decimal
	ComparePrice *decimal.Decimal
	ImageURL     string
	Stock        int
	Status       string
}

// ProductService defines the interface for catalog business logic
type ProductService interface {
	Create(ctx context.Context, sellerID uuid.UUID, input ProductInput) (*domain.Product, error)
	Update(ctx context.Context, actorID uuid.UUID, isAdmin bool, productID uuid.UUID, input ProductInput) (*domain.Product, error)
	Delete(ctx context.Context, actorID uuid.UUID, isAdmin bool, productID uuid.UUID) error
	Get(ctx context.Context, productID uuid.UUID) (*domain.Product, error)
	List(ctx context.Context, filter repository.ProductFilter, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Product, int, error)
	Search(ctx context.Context, query string, page, pageSize int) ([]*domain.Product, int, error)
	SyncProduct(ctx context.Context, productID uuid.UUID, deleted bool) error
	Reindex(ctx context.Context, fresh bool, chunkSize int) (int, error)
	ConfigureIndex(ctx context.Context) error
}

type productService struct {
	productRepo  repository.ProductRepository
	categoryRepo repository.CategoryRepository
	indexer      search.Indexer
	queue        *queue.Queue
	logger       *zap.Logger
}

// NewProductService creates a new instance of ProductService
func NewProductService(
	productRepo repository.ProductRepository,
	categoryRepo repository.CategoryRepository,
	indexer search.Indexer,
	q *queue.Queue,
	logger *zap.Logger,
) ProductService {
	return &productService{
		productRepo:  productRepo,
		categoryRepo: categoryRepo,
		indexer:      indexer,
		queue:        q,
		logger:       logger,
	}
}

// Create adds a product owned by the given seller
func (s *productService) Create(ctx context.Context, sellerID uuid.UUID, input ProductInput) (*domain.Product, error) {
	if _, err := s.categoryRepo.FindByID(ctx, input.CategoryID); err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = domain.ProductStatusDraft
	}

	product := &domain.Product{
		ID:           uuid.New(),
		SellerID:     sellerID,
		CategoryID:   input.CategoryID,
		Name:         input.Name,
		SKU:          input.SKU,
		Description:  input.Description,
		Price:        input.Price,
		ComparePrice: input.ComparePrice,
		ImageURL:     input.ImageURL,
		Stock:        input.Stock,
		Status:       status,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, err
	}

	s.enqueueSync(ctx, product.ID, false)
	return product, nil
}

// Update modifies a product. Sellers may only touch their own listings;
// admins may touch any.
func (s *productService) Update(ctx context.Context, actorID uuid.UUID, isAdmin bool, productID uuid.UUID, input ProductInput) (*domain.Product, error) {
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && product.SellerID != actorID {
		return nil, ErrNotProductOwner
	}

	if input.CategoryID != product.CategoryID {
		if _, err := s.categoryRepo.FindByID(ctx, input.CategoryID); err != nil {
			return nil, err
		}
	}

	product.CategoryID = input.CategoryID
	product.Name = input.Name
	product.SKU = input.SKU
	product.Description = input.Description
	product.Price = input.Price
	product.ComparePrice = input.ComparePrice
	product.ImageURL = input.ImageURL
	product.Stock = input.Stock
	if input.Status != "" {
		product.Status = input.Status
	}

	if err := s.productRepo.Update(ctx, product); err != nil {
		return nil, err
	}

	s.enqueueSync(ctx, product.ID, false)
	return product, nil
}

// Delete removes a product, subject to the same ownership rule as Update
func (s *productService) Delete(ctx context.Context, actorID uuid.UUID, isAdmin bool, productID uuid.UUID) error {
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return err
	}
	if !isAdmin && product.SellerID != actorID {
		return ErrNotProductOwner
	}

	if err := s.productRepo.Delete(ctx, productID); err != nil {
		return err
	}

	s.enqueueSync(ctx, productID, true)
	return nil
}

// Get returns a single product
func (s *productService) Get(ctx context.Context, productID uuid.UUID) (*domain.Product, error) {
	return s.productRepo.FindByID(ctx, productID)
}

// List returns a filtered, paginated product page
func (s *productService) List(ctx context.Context, filter repository.ProductFilter, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Product, int, error) {
	return s.productRepo.List(ctx, filter, page, pageSize, sortBy, sortOrder)
}

// Search queries the external index when enabled, hydrating hits from
// the database in index order; otherwise it falls back to a database
// text search. Only active products are returned either way.
func (s *productService) Search(ctx context.Context, query string, page, pageSize int) ([]*domain.Product, int, error) {
	if !s.indexer.Enabled() {
		return s.productRepo.Search(ctx, query, page, pageSize)
	}

	ids, total, err := s.indexer.Search(ctx, query, page, pageSize)
	if err != nil {
		s.logger.Warn("search engine query failed, falling back to database", zap.Error(err))
		return s.productRepo.Search(ctx, query, page, pageSize)
	}
	if len(ids) == 0 {
		return []*domain.Product{}, total, nil
	}

	products, err := s.productRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	// Preserve the engine's relevance order
	byID := make(map[uuid.UUID]*domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	ordered := make([]*domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered, total, nil
}

// SyncProduct pushes one product's current state to the index, or
// removes it. Called by the background sync job handler.
func (s *productService) SyncProduct(ctx context.Context, productID uuid.UUID, deleted bool) error {
	if !s.indexer.Enabled() {
		return nil
	}
	if deleted {
		return s.indexer.DeleteProduct(ctx, productID)
	}

	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return s.indexer.DeleteProduct(ctx, productID)
		}
		return err
	}
	return s.indexer.IndexProducts(ctx, []*domain.Product{product})
}

// Reindex pushes the whole catalog to the search engine in chunks.
// With fresh set, the index settings are reapplied first. Returns the
// number of products indexed.
func (s *productService) Reindex(ctx context.Context, fresh bool, chunkSize int) (int, error) {
	if !s.indexer.Enabled() {
		return 0, errors.New("search is not enabled")
	}
	if chunkSize <= 0 {
		chunkSize = 100
	}
	if fresh {
		if err := s.indexer.Configure(ctx); err != nil {
			return 0, fmt.Errorf("failed to configure index: %w", err)
		}
	}

	indexed := 0
	page := 1
	for {
		products, _, err := s.productRepo.List(ctx, repository.ProductFilter{}, page, chunkSize, "created_at", repository.SortOrderAsc)
		if err != nil {
			return indexed, err
		}
		if len(products) == 0 {
			return indexed, nil
		}
		if err := s.indexer.IndexProducts(ctx, products); err != nil {
			return indexed, err
		}
		indexed += len(products)
		if len(products) < chunkSize {
			return indexed, nil
		}
		page++
	}
}

// ConfigureIndex applies the search engine settings
func (s *productService) ConfigureIndex(ctx context.Context) error {
	return s.indexer.Configure(ctx)
}

func (s *productService) enqueueSync(ctx context.Context, productID uuid.UUID, deleted bool) {
	if s.queue == nil || !s.indexer.Enabled() {
		return
	}
	if err := s.queue.Enqueue(ctx, queue.TypeSearchSync, queue.SearchSyncPayload{ProductID: productID, Delete: deleted}); err != nil {
		s.logger.Warn("failed to enqueue search sync", zap.Error(err))
	}
}
