package dto

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

// CreateProductRequest names the category by name; it is created on first use.
type CreateProductRequest struct {
	Category  string `json:"category"   validate:"required,min=1,max=80"`
	Flavor    string `json:"flavor"     validate:"required,min=1,max=80"`
	SKUSuffix string `json:"sku_suffix" validate:"omitempty,max=32"`
}

// UpdateInventoryRequest replaces the product's whole container inventory.
type UpdateInventoryRequest struct {
	Entries []InventoryEntryRequest `json:"entries" validate:"dive"`
}

type InventoryEntryRequest struct {
	TemplateID string `json:"template_id" validate:"required,uuid"`
	Quantity   int    `json:"quantity"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type ProductResponse struct {
	ID                   string                  `json:"id"`
	CategoryID           string                  `json:"category_id"`
	CategoryName         string                  `json:"category_name"`
	Flavor               string                  `json:"flavor"`
	SKUSuffix            string                  `json:"sku_suffix"`
	DisplayName          string                  `json:"display_name"`
	Status               string                  `json:"status"`
	Inventory            []InventoryLineResponse `json:"inventory"`
	OnHandWeightOz       decimal.Decimal         `json:"on_hand_weight_oz"`
	InProductionWeightOz decimal.Decimal         `json:"in_production_weight_oz"`
	Version              int64                   `json:"version"`
}

type InventoryLineResponse struct {
	TemplateID  string `json:"template_id"`
	Container   string `json:"container"`
	Quantity    int    `json:"quantity"`
	MinQuantity *int   `json:"min_quantity"`
	LowStock    bool   `json:"low_stock"`
}

type HistoryResponse struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	ChangeType  string          `json:"change_type"`
	Details     json.RawMessage `json:"details"`
	CSVFileID   *string         `json:"csv_file_id"`
	CreatedAt   time.Time       `json:"created_at"`
}

type HistoryFilter struct {
	Limit int `form:"limit,default=50" validate:"min=1,max=500"`
}
