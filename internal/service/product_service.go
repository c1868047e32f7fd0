package service

import (
	"context"
	"fmt"
	"strings"

	"sostrack/internal/dto"
	"sostrack/internal/model"
	"sostrack/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type ProductService interface {
	Create(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, error)
	List(ctx context.Context) ([]dto.ProductResponse, error)
	UpdateInventory(ctx context.Context, id uuid.UUID, req dto.UpdateInventoryRequest) (*dto.ProductResponse, error)
	Delete(ctx context.Context, id uuid.UUID) error
	History(ctx context.Context, id uuid.UUID, limit int) ([]dto.HistoryResponse, error)
}

type productService struct {
	store      repository.Store
	categories CategoryService
	ledger     *Ledger
}

func NewProductService(store repository.Store, categories CategoryService, ledger *Ledger) ProductService {
	return &productService{store: store, categories: categories, ledger: ledger}
}

// Create adds a flavor to the named category, creating the category in the same
// commit when it does not exist yet.
func (s *productService) Create(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error) {
	flavor := strings.Join(strings.Fields(req.Flavor), " ")
	if flavor == "" {
		return nil, invalidf("flavor is required")
	}

	ws := repository.NewWriteSet()
	cat, created, err := s.categories.FindOrCreate(ctx, ws, req.Category)
	if err != nil {
		return nil, err
	}
	if !created {
		products, err := s.store.ListProducts(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range products {
			if p.CategoryID == cat.ID && strings.EqualFold(p.Flavor, flavor) {
				return nil, fmt.Errorf("product %q: %w", p.DisplayName(cat.Name), repository.ErrConflict)
			}
		}
	}

	p := model.Product{
		ID:         uuid.New(),
		CategoryID: cat.ID,
		Flavor:     flavor,
		SKUSuffix:  strings.ToUpper(strings.TrimSpace(req.SKUSuffix)),
	}
	ws.CreateProduct(p)
	if err := s.store.Commit(ctx, ws); err != nil {
		return nil, commitErr("create product", err)
	}
	log.Info().
		Str("product_id", p.ID.String()).
		Str("category_id", cat.ID.String()).
		Bool("category_created", created).
		Msg("product: created")
	return s.Get(ctx, p.ID)
}

func (s *productService) Get(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, error) {
	p, err := s.store.FindProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", id, err)
	}
	cat, err := s.store.FindCategory(ctx, p.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("product %s: category: %w", id, err)
	}
	batches, err := s.store.ListBatches(ctx)
	if err != nil {
		return nil, err
	}
	resp := toProductResponse(*p, *cat, batchesOf(batches, p.ID))
	return &resp, nil
}

// List returns every product with its aggregate status and weights.
func (s *productService) List(ctx context.Context) ([]dto.ProductResponse, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	cats, err := categoryIndex(ctx, s.store)
	if err != nil {
		return nil, err
	}
	batches, err := s.store.ListBatches(ctx)
	if err != nil {
		return nil, err
	}
	byProduct := make(map[uuid.UUID][]model.Batch)
	for _, b := range batches {
		byProduct[b.ProductID] = append(byProduct[b.ProductID], b)
	}

	out := make([]dto.ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p, cats[p.CategoryID], byProduct[p.ID]))
	}
	return out, nil
}

// UpdateInventory is the manual bulk edit: the request replaces the whole list.
func (s *productService) UpdateInventory(ctx context.Context, id uuid.UUID, req dto.UpdateInventoryRequest) (*dto.ProductResponse, error) {
	entries := make([]model.InventoryEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		tid, err := uuid.Parse(e.TemplateID)
		if err != nil {
			return nil, invalidf("template_id: %v", err)
		}
		entries = append(entries, model.InventoryEntry{TemplateID: tid, Quantity: e.Quantity})
	}
	if _, err := s.ledger.ReplaceInventory(ctx, id, entries); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes the product and every batch that references it. History
// entries are kept.
func (s *productService) Delete(ctx context.Context, id uuid.UUID) error {
	ws := repository.NewWriteSet()
	ws.DeleteProduct(id)
	if err := s.store.Commit(ctx, ws); err != nil {
		return commitErr("delete product", err)
	}
	log.Info().Str("product_id", id.String()).Msg("product: deleted with its batches")
	return nil
}

func (s *productService) History(ctx context.Context, id uuid.UUID, limit int) ([]dto.HistoryResponse, error) {
	if _, err := s.store.FindProduct(ctx, id); err != nil {
		return nil, fmt.Errorf("product %s: %w", id, err)
	}
	entries, err := s.store.ListHistory(ctx, repository.HistoryFilter{ProductID: &id, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]dto.HistoryResponse, 0, len(entries))
	for _, h := range entries {
		out = append(out, toHistoryResponse(h))
	}
	return out, nil
}

func categoryIndex(ctx context.Context, r repository.Reader) (map[uuid.UUID]model.Category, error) {
	cats, err := r.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]model.Category, len(cats))
	for _, c := range cats {
		out[c.ID] = c
	}
	return out, nil
}

func batchesOf(batches []model.Batch, productID uuid.UUID) []model.Batch {
	var out []model.Batch
	for _, b := range batches {
		if b.ProductID == productID {
			out = append(out, b)
		}
	}
	return out
}
