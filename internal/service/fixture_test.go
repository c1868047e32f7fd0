package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"sostrack/internal/dto"
	"sostrack/internal/model"
	"sostrack/internal/repository"
	"sostrack/internal/worker"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// fakeNotifier records queued jobs instead of pushing them to Redis.
type fakeNotifier struct {
	mu       sync.Mutex
	lowStock []worker.LowStockPayload
	changes  []worker.StatusChangePayload
}

func (f *fakeNotifier) EnqueueLowStock(_ context.Context, p worker.LowStockPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lowStock = append(f.lowStock, p)
	return nil
}

func (f *fakeNotifier) EnqueueStatusChange(_ context.Context, p worker.StatusChangePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, p)
	return nil
}

func (f *fakeNotifier) statusChanges() []worker.StatusChangePayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]worker.StatusChangePayload(nil), f.changes...)
}

type fixture struct {
	ctx        context.Context
	store      *repository.MemoryStore
	notifier   *fakeNotifier
	ledger     *Ledger
	categories CategoryService
	products   ProductService
	batches    *batchService
	imports    ImportService

	category model.Category
	jar      uuid.UUID
	pouch    uuid.UUID
	product  model.Product
}

func intPtr(n int) *int { return &n }

// newFixture seeds a "Gummies" category with Jar (8oz, min 2) and Pouch (4oz)
// containers and one "Blue Raz" product.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{ctx: context.Background(), store: repository.NewMemoryStore(), notifier: &fakeNotifier{}}
	f.ledger = NewLedger(f.store, f.notifier)
	f.categories = NewCategoryService(f.store)
	f.products = NewProductService(f.store, f.categories, f.ledger)
	f.batches = NewBatchService(f.store, f.ledger, DefaultRetention).(*batchService)
	f.imports = NewImportService(f.store, f.ledger)

	cat, err := f.categories.Create(f.ctx, dto.CreateCategoryRequest{
		Name: "Gummies",
		Containers: []dto.ContainerTemplateRequest{
			{Name: "Jar", WeightOz: decimal.NewFromInt(8), SKU: "JAR", MinQuantity: intPtr(2)},
			{Name: "Pouch", WeightOz: decimal.NewFromInt(4), SKU: "PCH"},
		},
	})
	require.NoError(t, err)
	f.jar = uuid.MustParse(cat.Containers[0].ID)
	f.pouch = uuid.MustParse(cat.Containers[1].ID)

	p, err := f.products.Create(f.ctx, dto.CreateProductRequest{Category: "gummies", Flavor: "Blue Raz", SKUSuffix: "BR"})
	require.NoError(t, err)
	f.refresh(t, uuid.MustParse(p.ID))
	return f
}

// refresh reloads the fixture's category and product from the store.
func (f *fixture) refresh(t *testing.T, productID uuid.UUID) {
	t.Helper()
	p, err := f.store.FindProduct(f.ctx, productID)
	require.NoError(t, err)
	cat, err := f.store.FindCategory(f.ctx, p.CategoryID)
	require.NoError(t, err)
	f.product, f.category = *p, *cat
}

func (f *fixture) setStock(t *testing.T, jar, pouch int) {
	t.Helper()
	_, err := f.ledger.ReplaceInventory(f.ctx, f.product.ID, []model.InventoryEntry{
		{TemplateID: f.jar, Quantity: jar},
		{TemplateID: f.pouch, Quantity: pouch},
	})
	require.NoError(t, err)
	f.refresh(t, f.product.ID)
}

func (f *fixture) quantity(t *testing.T, templateID uuid.UUID) int {
	t.Helper()
	p, err := f.store.FindProduct(f.ctx, f.product.ID)
	require.NoError(t, err)
	return p.Quantity(templateID)
}

// packagedBatch starts a run for the fixture product and moves it to Package.
func (f *fixture) packagedBatch(t *testing.T) uuid.UUID {
	t.Helper()
	b, err := f.batches.StartRun(f.ctx, dto.StartRunRequest{
		ProductID:  f.product.ID.String(),
		Containers: []dto.ContainerCountDTO{{TemplateID: f.jar.String(), Quantity: 4}},
	})
	require.NoError(t, err)
	id := uuid.MustParse(b.ID)
	_, err = f.batches.MarkPackaged(f.ctx, id)
	require.NoError(t, err)
	return id
}

func (f *fixture) seedReady(t *testing.T, readyAt time.Time) uuid.UUID {
	t.Helper()
	b := model.Batch{
		ID:              uuid.New(),
		ProductID:       f.product.ID,
		CategoryID:      f.product.CategoryID,
		Status:          model.BatchReady,
		StartedAt:       readyAt.Add(-time.Hour),
		StatusChangedAt: &readyAt,
		ReadyAt:         &readyAt,
	}
	ws := repository.NewWriteSet()
	ws.CreateBatch(b)
	require.NoError(t, f.store.Commit(f.ctx, ws))
	return b.ID
}

func finalCount(templateID uuid.UUID, qty string) dto.FinalizeRequest {
	return dto.FinalizeRequest{FinalCount: []dto.FinalCountEntry{{TemplateID: templateID.String(), Quantity: dto.RawQuantity(qty)}}}
}
