package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sostrack/internal/model"
	"sostrack/internal/repository"
	"sostrack/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// LowStockNotifier receives restock alerts. *worker.Dispatcher satisfies it.
type LowStockNotifier interface {
	EnqueueLowStock(ctx context.Context, p worker.LowStockPayload) error
}

// Ledger is the only writer of Product.ContainerInventory. It stages entry
// changes into a caller's write set; the caller commits them together with the
// rest of its logical operation.
type Ledger struct {
	store    repository.Store
	notifier LowStockNotifier
	now      func() time.Time
}

func NewLedger(store repository.Store, notifier LowStockNotifier) *Ledger {
	return &Ledger{store: store, notifier: notifier, now: func() time.Time { return time.Now().UTC() }}
}

// ApplyDelta sets the product's entry for templateID to max(0, expectedBefore+delta)
// and stages the product. expectedBefore must come from the same read as p so the
// store's version check can reject a stale write. Returns the staged quantity.
func (l *Ledger) ApplyDelta(ws *repository.WriteSet, p *model.Product, templateID uuid.UUID, delta, expectedBefore int) int {
	after := expectedBefore + delta
	if after < 0 {
		after = 0
	}
	p.SetQuantity(templateID, after)
	ws.UpdateProduct(*p)
	return after
}

// SetEntry overwrites one entry without clamping. Import reconciliation uses it
// so oversold stock shows up as a negative balance.
func (l *Ledger) SetEntry(ws *repository.WriteSet, p *model.Product, templateID uuid.UUID, quantity int) {
	p.SetQuantity(templateID, quantity)
	ws.UpdateProduct(*p)
}

// ReplaceInventory swaps the product's whole inventory for entries and records a
// "Manual Edit" history entry in the same commit. Duplicate template ids keep the
// last value and negative quantities are stored as 0.
func (l *Ledger) ReplaceInventory(ctx context.Context, productID uuid.UUID, entries []model.InventoryEntry) (*model.Product, error) {
	p, err := l.store.FindProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("replace inventory: %w", err)
	}
	cat, err := l.store.FindCategory(ctx, p.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("replace inventory: category: %w", err)
	}

	normalized := make([]model.InventoryEntry, 0, len(entries))
	pos := make(map[uuid.UUID]int, len(entries))
	for _, e := range entries {
		if _, ok := cat.Template(e.TemplateID); !ok {
			return nil, invalidf("container %s does not belong to category %s", e.TemplateID, cat.Name)
		}
		if e.Quantity < 0 {
			e.Quantity = 0
		}
		if i, dup := pos[e.TemplateID]; dup {
			normalized[i].Quantity = e.Quantity
			continue
		}
		pos[e.TemplateID] = len(normalized)
		normalized = append(normalized, e)
	}

	before := p.Clone()
	p.ContainerInventory = normalized

	details, err := json.Marshal(normalized)
	if err != nil {
		return nil, err
	}
	ws := repository.NewWriteSet()
	ws.UpdateProduct(*p)
	ws.AppendHistory(model.InventoryHistory{
		ID:          uuid.New(),
		ProductID:   p.ID,
		ProductName: p.DisplayName(cat.Name),
		ChangeType:  model.ChangeManualEdit,
		Details:     details,
		CreatedAt:   l.now(),
	})
	if err := l.store.Commit(ctx, ws); err != nil {
		log.Error().Err(err).Str("product_id", p.ID.String()).Msg("ledger: manual edit commit failed")
		return nil, commitErr("replace inventory", err)
	}
	log.Info().Str("product_id", p.ID.String()).Int("entries", len(normalized)).Msg("ledger: inventory replaced")

	l.AlertCrossings(ctx, *cat, before, *p)
	return l.store.FindProduct(ctx, p.ID)
}

// AlertCrossings queues a low-stock alert for every template that went from at
// or above its minimum to below it.
func (l *Ledger) AlertCrossings(ctx context.Context, cat model.Category, before, after model.Product) {
	if l.notifier == nil {
		return
	}
	for _, t := range cat.Containers {
		if t.MinQuantity == nil {
			continue
		}
		was, now := before.Quantity(t.ID), after.Quantity(t.ID)
		if was >= *t.MinQuantity && now < *t.MinQuantity {
			err := l.notifier.EnqueueLowStock(ctx, worker.LowStockPayload{
				ProductID:   after.ID.String(),
				ProductName: after.DisplayName(cat.Name),
				Container:   t.Name,
				Quantity:    now,
				Minimum:     *t.MinQuantity,
			})
			if err != nil {
				log.Warn().Err(err).Str("product_id", after.ID.String()).Msg("ledger: low-stock alert not queued")
			}
		}
	}
}

// OnHandWeight is Σ quantity × template weight over the product's inventory.
// Entries whose template is no longer in the category contribute nothing.
func OnHandWeight(p model.Product, cat model.Category) decimal.Decimal {
	total := decimal.Zero
	for _, e := range p.ContainerInventory {
		if t, ok := cat.Template(e.TemplateID); ok {
			total = total.Add(t.WeightOz.Mul(decimal.NewFromInt(int64(e.Quantity))))
		}
	}
	return total
}

// RequestWeight is a run's requested bulk weight plus the weight of its
// requested containers.
func RequestWeight(req *model.BatchRequest, cat model.Category) decimal.Decimal {
	if req == nil {
		return decimal.Zero
	}
	total := req.BulkWeightOz
	for _, c := range req.Containers {
		if t, ok := cat.Template(c.TemplateID); ok {
			total = total.Add(t.WeightOz.Mul(decimal.NewFromInt(int64(c.Quantity))))
		}
	}
	return total
}

// InProductionWeight sums the requested weight of batches still in Make or Package.
func InProductionWeight(batches []model.Batch, cat model.Category) decimal.Decimal {
	total := decimal.Zero
	for _, b := range batches {
		if b.Status == model.BatchMake || b.Status == model.BatchPackage {
			total = total.Add(RequestWeight(b.Request, cat))
		}
	}
	return total
}
