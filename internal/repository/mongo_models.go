package repository

import (
	"time"

	"sostrack/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Document shapes for the mongo driver. Ids are stored as strings and weights as
// decimal strings so documents stay readable from the shell.

type categoryDoc struct {
	ID         string         `bson:"_id"`
	Name       string         `bson:"name"`
	NameKey    string         `bson:"name_key"`
	SKUPrefix  string         `bson:"sku_prefix"`
	Containers []containerDoc `bson:"containers"`
	CreatedAt  time.Time      `bson:"created_at"`
	UpdatedAt  time.Time      `bson:"updated_at"`
}

type containerDoc struct {
	ID          string `bson:"id"`
	Name        string `bson:"name"`
	WeightOz    string `bson:"weight_oz"`
	SKU         string `bson:"sku"`
	MinQuantity *int   `bson:"min_quantity,omitempty"`
}

type productDoc struct {
	ID         string        `bson:"_id"`
	CategoryID string        `bson:"category_id"`
	Flavor     string        `bson:"flavor"`
	SKUSuffix  string        `bson:"sku_suffix"`
	Inventory  []quantityDoc `bson:"container_inventory"`
	Version    int64         `bson:"version"`
	CreatedAt  time.Time     `bson:"created_at"`
	UpdatedAt  time.Time     `bson:"updated_at"`
}

type quantityDoc struct {
	TemplateID string `bson:"template_id"`
	Quantity   int    `bson:"quantity"`
}

type batchDoc struct {
	ID              string        `bson:"_id"`
	ProductID       string        `bson:"product_id"`
	CategoryID      string        `bson:"category_id"`
	Status          string        `bson:"status"`
	Request         *requestDoc   `bson:"request,omitempty"`
	FinalCount      []quantityDoc `bson:"final_count,omitempty"`
	StartedAt       time.Time     `bson:"started_at"`
	StatusChangedAt *time.Time    `bson:"status_changed_at,omitempty"`
	ReadyAt         *time.Time    `bson:"ready_at,omitempty"`
}

type requestDoc struct {
	Containers   []quantityDoc `bson:"containers,omitempty"`
	BulkWeightOz string        `bson:"bulk_weight_oz"`
}

type historyDoc struct {
	ID          string    `bson:"_id"`
	ProductID   string    `bson:"product_id"`
	ProductName string    `bson:"product_name"`
	ChangeType  string    `bson:"change_type"`
	Details     string    `bson:"details"`
	CSVFileID   *string   `bson:"csv_file_id,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
}

type csvFileDoc struct {
	ID        string    `bson:"_id"`
	FileName  string    `bson:"file_name"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func parseID(s string) uuid.UUID {
	id, _ := uuid.Parse(s)
	return id
}

func parseDecimal(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func toCategoryDoc(c model.Category) categoryDoc {
	d := categoryDoc{
		ID: c.ID.String(), Name: c.Name, NameKey: c.NameKey, SKUPrefix: c.SKUPrefix,
		CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
	for _, t := range c.Containers {
		d.Containers = append(d.Containers, containerDoc{
			ID: t.ID.String(), Name: t.Name, WeightOz: t.WeightOz.String(), SKU: t.SKU, MinQuantity: t.MinQuantity,
		})
	}
	return d
}

func fromCategoryDoc(d categoryDoc) model.Category {
	c := model.Category{
		ID: parseID(d.ID), Name: d.Name, NameKey: d.NameKey, SKUPrefix: d.SKUPrefix,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
	for _, t := range d.Containers {
		c.Containers = append(c.Containers, model.ContainerTemplate{
			ID: parseID(t.ID), Name: t.Name, WeightOz: parseDecimal(t.WeightOz), SKU: t.SKU, MinQuantity: t.MinQuantity,
		})
	}
	return c
}

func toProductDoc(p model.Product) productDoc {
	d := productDoc{
		ID: p.ID.String(), CategoryID: p.CategoryID.String(), Flavor: p.Flavor, SKUSuffix: p.SKUSuffix,
		Version: p.Version, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
		Inventory: make([]quantityDoc, 0, len(p.ContainerInventory)),
	}
	for _, e := range p.ContainerInventory {
		d.Inventory = append(d.Inventory, quantityDoc{TemplateID: e.TemplateID.String(), Quantity: e.Quantity})
	}
	return d
}

func fromProductDoc(d productDoc) model.Product {
	p := model.Product{
		ID: parseID(d.ID), CategoryID: parseID(d.CategoryID), Flavor: d.Flavor, SKUSuffix: d.SKUSuffix,
		Version: d.Version, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
	for _, e := range d.Inventory {
		p.ContainerInventory = append(p.ContainerInventory, model.InventoryEntry{TemplateID: parseID(e.TemplateID), Quantity: e.Quantity})
	}
	return p
}

func toCountDocs(in []model.ContainerCount) []quantityDoc {
	if len(in) == 0 {
		return nil
	}
	out := make([]quantityDoc, len(in))
	for i, c := range in {
		out[i] = quantityDoc{TemplateID: c.TemplateID.String(), Quantity: c.Quantity}
	}
	return out
}

func fromCountDocs(in []quantityDoc) []model.ContainerCount {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.ContainerCount, len(in))
	for i, c := range in {
		out[i] = model.ContainerCount{TemplateID: parseID(c.TemplateID), Quantity: c.Quantity}
	}
	return out
}

func toBatchDoc(b model.Batch) batchDoc {
	d := batchDoc{
		ID: b.ID.String(), ProductID: b.ProductID.String(), CategoryID: b.CategoryID.String(),
		Status: string(b.Status), FinalCount: toCountDocs(b.FinalCount),
		StartedAt: b.StartedAt, StatusChangedAt: b.StatusChangedAt, ReadyAt: b.ReadyAt,
	}
	if b.Request != nil {
		d.Request = &requestDoc{
			Containers:   toCountDocs(b.Request.Containers),
			BulkWeightOz: b.Request.BulkWeightOz.String(),
		}
	}
	return d
}

func fromBatchDoc(d batchDoc) model.Batch {
	b := model.Batch{
		ID: parseID(d.ID), ProductID: parseID(d.ProductID), CategoryID: parseID(d.CategoryID),
		Status: model.BatchStatus(d.Status), StartedAt: d.StartedAt,
		StatusChangedAt: d.StatusChangedAt, ReadyAt: d.ReadyAt,
	}
	if fc := fromCountDocs(d.FinalCount); fc != nil {
		b.FinalCount = datatypes.JSONSlice[model.ContainerCount](fc)
	}
	if d.Request != nil {
		b.Request = &model.BatchRequest{
			Containers:   fromCountDocs(d.Request.Containers),
			BulkWeightOz: parseDecimal(d.Request.BulkWeightOz),
		}
	}
	return b
}

func toHistoryDoc(h model.InventoryHistory) historyDoc {
	d := historyDoc{
		ID: h.ID.String(), ProductID: h.ProductID.String(), ProductName: h.ProductName,
		ChangeType: string(h.ChangeType), Details: string(h.Details), CreatedAt: h.CreatedAt,
	}
	if h.CSVFileID != nil {
		s := h.CSVFileID.String()
		d.CSVFileID = &s
	}
	return d
}

func fromHistoryDoc(d historyDoc) model.InventoryHistory {
	h := model.InventoryHistory{
		ID: parseID(d.ID), ProductID: parseID(d.ProductID), ProductName: d.ProductName,
		ChangeType: model.ChangeType(d.ChangeType), Details: datatypes.JSON(d.Details), CreatedAt: d.CreatedAt,
	}
	if d.CSVFileID != nil {
		id := parseID(*d.CSVFileID)
		h.CSVFileID = &id
	}
	return h
}

func toCSVFileDoc(f model.CSVFile) csvFileDoc {
	return csvFileDoc{ID: f.ID.String(), FileName: f.FileName, Content: f.Content, CreatedAt: f.CreatedAt, UpdatedAt: f.UpdatedAt}
}

func fromCSVFileDoc(d csvFileDoc) model.CSVFile {
	return model.CSVFile{ID: parseID(d.ID), FileName: d.FileName, Content: d.Content, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}
