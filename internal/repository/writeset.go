package repository

import (
	"sostrack/internal/model"

	"github.com/google/uuid"
)

// WriteSet stages the constituent writes of one atomic multi-entity commit.
// Services build a WriteSet and hand it to Store.Commit exactly once.
type WriteSet struct {
	categoryCreates  []model.Category
	categoryUpdates  []model.Category
	productCreates   []model.Product
	productUpdates   []model.Product
	productDeletes   []uuid.UUID
	batchCreates     []model.Batch
	batchTransitions []BatchTransition
	batchDeletes     []uuid.UUID
	history          []model.InventoryHistory
	csvFiles         []model.CSVFile
}

// BatchTransition replaces a batch only if its stored status still equals From.
type BatchTransition struct {
	Batch model.Batch
	From  model.BatchStatus
}

func NewWriteSet() *WriteSet { return &WriteSet{} }

// CreateCategory inserts a category. A duplicate name key fails the commit with ErrConflict.
func (ws *WriteSet) CreateCategory(c model.Category) {
	ws.categoryCreates = append(ws.categoryCreates, c)
}

// UpdateCategory overwrites name, SKU prefix and container templates.
func (ws *WriteSet) UpdateCategory(c model.Category) {
	ws.categoryUpdates = append(ws.categoryUpdates, c)
}

func (ws *WriteSet) CreateProduct(p model.Product) {
	ws.productCreates = append(ws.productCreates, p.Clone())
}

// UpdateProduct stages p. p.Version must be the version p was read at; the
// commit fails with ErrConflict if the stored version differs. Staging the same
// product twice keeps the last copy.
func (ws *WriteSet) UpdateProduct(p model.Product) {
	for i := range ws.productUpdates {
		if ws.productUpdates[i].ID == p.ID {
			ws.productUpdates[i] = p.Clone()
			return
		}
	}
	ws.productUpdates = append(ws.productUpdates, p.Clone())
}

// StagedProduct returns the staged copy of a product update, if any.
func (ws *WriteSet) StagedProduct(id uuid.UUID) (model.Product, bool) {
	for _, p := range ws.productUpdates {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return model.Product{}, false
}

// DeleteProduct removes a product together with every batch that references it.
func (ws *WriteSet) DeleteProduct(id uuid.UUID) {
	ws.productDeletes = append(ws.productDeletes, id)
}

func (ws *WriteSet) CreateBatch(b model.Batch) {
	ws.batchCreates = append(ws.batchCreates, b.Clone())
}

// TransitionBatch replaces b guarded by its stored status being from.
func (ws *WriteSet) TransitionBatch(b model.Batch, from model.BatchStatus) {
	ws.batchTransitions = append(ws.batchTransitions, BatchTransition{Batch: b.Clone(), From: from})
}

// DeleteBatches removes batches by id. Unknown ids are ignored.
func (ws *WriteSet) DeleteBatches(ids ...uuid.UUID) {
	ws.batchDeletes = append(ws.batchDeletes, ids...)
}

func (ws *WriteSet) AppendHistory(h model.InventoryHistory) {
	ws.history = append(ws.history, h)
}

// PutCSVFile creates or replaces a stored CSV file.
func (ws *WriteSet) PutCSVFile(f model.CSVFile) {
	ws.csvFiles = append(ws.csvFiles, f)
}

// Empty reports whether nothing is staged.
func (ws *WriteSet) Empty() bool {
	return len(ws.Touched()) == 0
}

// Touched lists the collections the write set modifies.
func (ws *WriteSet) Touched() []Collection {
	var out []Collection
	if len(ws.categoryCreates)+len(ws.categoryUpdates) > 0 {
		out = append(out, CollectionCategories)
	}
	if len(ws.productCreates)+len(ws.productUpdates)+len(ws.productDeletes) > 0 {
		out = append(out, CollectionProducts)
	}
	if len(ws.batchCreates)+len(ws.batchTransitions)+len(ws.batchDeletes)+len(ws.productDeletes) > 0 {
		out = append(out, CollectionBatches)
	}
	if len(ws.history) > 0 {
		out = append(out, CollectionHistory)
	}
	if len(ws.csvFiles) > 0 {
		out = append(out, CollectionCSVFiles)
	}
	return out
}
