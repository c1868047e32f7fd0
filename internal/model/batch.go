package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BatchStatus is a step of the production lifecycle:
// Requested → Make → Package → Ready → Completed.
type BatchStatus string

const (
	BatchRequested BatchStatus = "Requested"
	BatchMake      BatchStatus = "Make"
	BatchPackage   BatchStatus = "Package"
	BatchReady     BatchStatus = "Ready"
	BatchCompleted BatchStatus = "Completed"
)

// StatusIdle is the aggregate product status when no batch is active. It is never stored.
const StatusIdle = "Idle"

// Batch is one production run of a single product.
type Batch struct {
	ID         uuid.UUID   `gorm:"type:uuid;primaryKey"`
	ProductID  uuid.UUID   `gorm:"type:uuid;not null;index"`
	CategoryID uuid.UUID   `gorm:"type:uuid;not null"`
	Status     BatchStatus `gorm:"type:varchar(20);not null;index"`
	// Request is cleared when the batch is finalized.
	Request         *BatchRequest                      `gorm:"type:jsonb;serializer:json"`
	FinalCount      datatypes.JSONSlice[ContainerCount] `gorm:"type:jsonb"`
	StartedAt       time.Time                          `gorm:"not null"`
	StatusChangedAt *time.Time
	ReadyAt         *time.Time `gorm:"index"`
}

func (Batch) TableName() string { return "batches" }

// BatchRequest is what was asked for when the run started.
type BatchRequest struct {
	Containers   []ContainerCount `json:"containers,omitempty"`
	BulkWeightOz decimal.Decimal  `json:"bulk_weight_oz"`
}

// ContainerCount is a quantity of one container template.
type ContainerCount struct {
	TemplateID uuid.UUID `json:"template_id"`
	Quantity   int       `json:"quantity"`
}

// Active reports whether the batch still counts as in production or awaiting pickup.
func (b Batch) Active() bool {
	switch b.Status {
	case BatchMake, BatchPackage, BatchReady:
		return true
	}
	return false
}

// Clone returns a deep copy of the batch.
func (b Batch) Clone() Batch {
	out := b
	if b.Request != nil {
		req := *b.Request
		req.Containers = append([]ContainerCount(nil), b.Request.Containers...)
		out.Request = &req
	}
	if b.FinalCount != nil {
		out.FinalCount = append(datatypes.JSONSlice[ContainerCount](nil), b.FinalCount...)
	}
	if b.StatusChangedAt != nil {
		t := *b.StatusChangedAt
		out.StatusChangedAt = &t
	}
	if b.ReadyAt != nil {
		t := *b.ReadyAt
		out.ReadyAt = &t
	}
	return out
}
