package dto

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

// StartRunRequest opens a production run. Requested containers and bulk weight
// may be given together or alone.
type StartRunRequest struct {
	ProductID    string              `json:"product_id"     validate:"required,uuid"`
	Containers   []ContainerCountDTO `json:"containers"     validate:"omitempty,dive"`
	BulkWeightOz *decimal.Decimal    `json:"bulk_weight_oz"`
}

type ContainerCountDTO struct {
	TemplateID string `json:"template_id" validate:"required,uuid"`
	Quantity   int    `json:"quantity"    validate:"min=0"`
}

type FinalizeRequest struct {
	FinalCount []FinalCountEntry `json:"final_count" validate:"dive"`
}

// FinalCountEntry carries a counted quantity as typed by the operator: either a
// JSON number or a string. Entries that do not parse to a positive integer are
// dropped when finalizing.
type FinalCountEntry struct {
	TemplateID string      `json:"container_template_id" validate:"required"`
	Quantity   RawQuantity `json:"quantity"`
}

// RawQuantity keeps the literal text of a number-or-string JSON value.
type RawQuantity string

func (q *RawQuantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*q = RawQuantity(strings.TrimSpace(s))
		return nil
	}
	if string(data) == "null" {
		*q = ""
		return nil
	}
	*q = RawQuantity(data)
	return nil
}

type BulkDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,uuid"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type BatchResponse struct {
	ID              string              `json:"id"`
	ProductID       string              `json:"product_id"`
	CategoryID      string              `json:"category_id"`
	Status          string              `json:"status"`
	Request         *BatchRequestDTO    `json:"request"`
	FinalCount      []ContainerCountDTO `json:"final_count"`
	StartedAt       time.Time           `json:"started_at"`
	StatusChangedAt *time.Time          `json:"status_changed_at"`
	ReadyAt         *time.Time          `json:"ready_at"`
}

type BatchRequestDTO struct {
	Containers   []ContainerCountDTO `json:"containers"`
	BulkWeightOz decimal.Decimal     `json:"bulk_weight_oz"`
}

type SweepResponse struct {
	Completed int `json:"completed"`
}

type BulkDeleteResponse struct {
	Deleted int `json:"deleted"`
}
