package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Product is one flavor of a category together with its packaged stock.
//
// ContainerInventory is sparse: a template without an entry has quantity 0, and
// there is at most one entry per template id.
type Product struct {
	ID                 uuid.UUID                          `gorm:"type:uuid;primaryKey"`
	CategoryID         uuid.UUID                          `gorm:"type:uuid;not null;index"`
	Flavor             string                             `gorm:"not null"`
	SKUSuffix          string                             `gorm:"type:varchar(32)"`
	ContainerInventory datatypes.JSONSlice[InventoryEntry] `gorm:"type:jsonb"`
	// Version increases on every committed write and guards read-modify-write cycles.
	Version   int64 `gorm:"not null;default:1"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Product) TableName() string { return "products" }

// InventoryEntry is the on-hand quantity of one container template.
type InventoryEntry struct {
	TemplateID uuid.UUID `json:"template_id"`
	Quantity   int       `json:"quantity"`
}

// Quantity returns the on-hand count for a template (0 when absent).
func (p Product) Quantity(templateID uuid.UUID) int {
	for _, e := range p.ContainerInventory {
		if e.TemplateID == templateID {
			return e.Quantity
		}
	}
	return 0
}

// SetQuantity overwrites the entry for templateID, appending it when absent.
func (p *Product) SetQuantity(templateID uuid.UUID, qty int) {
	for i := range p.ContainerInventory {
		if p.ContainerInventory[i].TemplateID == templateID {
			p.ContainerInventory[i].Quantity = qty
			return
		}
	}
	p.ContainerInventory = append(p.ContainerInventory, InventoryEntry{TemplateID: templateID, Quantity: qty})
}

// TotalQuantity sums every container entry.
func (p Product) TotalQuantity() int {
	total := 0
	for _, e := range p.ContainerInventory {
		total += e.Quantity
	}
	return total
}

// DisplayName is the denormalized name written to history entries.
func (p Product) DisplayName(categoryName string) string {
	return strings.TrimSpace(p.Flavor + " " + categoryName)
}

// Clone returns a deep copy so callers can mutate inventory without aliasing.
func (p Product) Clone() Product {
	out := p
	if p.ContainerInventory != nil {
		out.ContainerInventory = make(datatypes.JSONSlice[InventoryEntry], len(p.ContainerInventory))
		copy(out.ContainerInventory, p.ContainerInventory)
	}
	return out
}
