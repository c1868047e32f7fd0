package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type CreateCategoryRequest struct {
	Name       string                     `json:"name"       validate:"required,min=1,max=80"`
	SKUPrefix  string                     `json:"sku_prefix" validate:"omitempty,alphanum,max=16"`
	Containers []ContainerTemplateRequest `json:"containers" validate:"omitempty,dive"`
}

type ContainerTemplateRequest struct {
	Name        string          `json:"name"         validate:"required,min=1,max=80"`
	WeightOz    decimal.Decimal `json:"weight_oz"`
	SKU         string          `json:"sku"          validate:"omitempty,max=32"`
	MinQuantity *int            `json:"min_quantity" validate:"omitempty,min=0"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type CategoryResponse struct {
	ID         string                      `json:"id"`
	Name       string                      `json:"name"`
	SKUPrefix  string                      `json:"sku_prefix"`
	Containers []ContainerTemplateResponse `json:"containers"`
}

type ContainerTemplateResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	WeightOz    decimal.Decimal `json:"weight_oz"`
	SKU         string          `json:"sku"`
	MinQuantity *int            `json:"min_quantity"`
}
