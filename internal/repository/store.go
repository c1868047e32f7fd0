package repository

import (
	"context"
	"errors"
	"fmt"

	"sostrack/internal/model"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when an addressed entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write set was built on a stale read: a product
	// version or batch status moved on, or a unique key is already taken. Nothing
	// in the write set was applied.
	ErrConflict = errors.New("concurrent modification")
)

// Collection names a document set that can be subscribed to.
type Collection string

const (
	CollectionCategories Collection = "categories"
	CollectionProducts   Collection = "products"
	CollectionBatches    Collection = "batches"
	CollectionHistory    Collection = "inventory_history"
	CollectionCSVFiles   Collection = "csv_files"
)

// Snapshot is the full current contents of one collection. Only the slice that
// matches Collection is populated.
type Snapshot struct {
	Collection Collection
	Categories []model.Category
	Products   []model.Product
	Batches    []model.Batch
	History    []model.InventoryHistory
	CSVFiles   []model.CSVFile
}

// HistoryFilter narrows ListHistory. Results are newest first.
type HistoryFilter struct {
	ProductID *uuid.UUID
	Limit     int // 0 = no limit
}

// Reader is the read side shared by every driver.
type Reader interface {
	ListCategories(ctx context.Context) ([]model.Category, error)
	FindCategory(ctx context.Context, id uuid.UUID) (*model.Category, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	FindProduct(ctx context.Context, id uuid.UUID) (*model.Product, error)
	ListBatches(ctx context.Context) ([]model.Batch, error)
	FindBatch(ctx context.Context, id uuid.UUID) (*model.Batch, error)
	ListHistory(ctx context.Context, filter HistoryFilter) ([]model.InventoryHistory, error)
	ListCSVFiles(ctx context.Context) ([]model.CSVFile, error)
	FindCSVFile(ctx context.Context, id uuid.UUID) (*model.CSVFile, error)
}

// Store is the document store the services run against.
//
// Commit applies a WriteSet all-or-nothing. Subscribe registers onChange for one
// collection: it is called once with the current contents and again after every
// committed change to that collection, always with the full set. The returned
// func unregisters it and is safe to call more than once.
type Store interface {
	Reader
	Commit(ctx context.Context, ws *WriteSet) error
	Subscribe(coll Collection, onChange func(Snapshot)) (unsubscribe func())
	Ping(ctx context.Context) error
	Close() error
}

// LoadSnapshot reads the full contents of coll through r.
func LoadSnapshot(ctx context.Context, r Reader, coll Collection) (Snapshot, error) {
	snap := Snapshot{Collection: coll}
	var err error
	switch coll {
	case CollectionCategories:
		snap.Categories, err = r.ListCategories(ctx)
	case CollectionProducts:
		snap.Products, err = r.ListProducts(ctx)
	case CollectionBatches:
		snap.Batches, err = r.ListBatches(ctx)
	case CollectionHistory:
		snap.History, err = r.ListHistory(ctx, HistoryFilter{})
	case CollectionCSVFiles:
		snap.CSVFiles, err = r.ListCSVFiles(ctx)
	default:
		return snap, fmt.Errorf("unknown collection %q", coll)
	}
	return snap, err
}
