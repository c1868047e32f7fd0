package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Category groups flavor variants and owns the container templates they are packaged in.
type Category struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name string    `gorm:"not null"`
	// NameKey is the normalized lookup key used by find-or-create (see NormalizeCategoryName).
	NameKey    string                                `gorm:"uniqueIndex;not null"`
	SKUPrefix  string                                `gorm:"type:varchar(16)"`
	Containers datatypes.JSONSlice[ContainerTemplate] `gorm:"type:jsonb"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Category) TableName() string { return "categories" }

// ContainerTemplate is one packaging size offered by a category.
type ContainerTemplate struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	WeightOz decimal.Decimal `json:"weight_oz"`
	SKU      string          `json:"sku"`
	// MinQuantity is the restock threshold; nil means no alert.
	MinQuantity *int `json:"min_quantity,omitempty"`
}

// Template returns the container template with the given id.
func (c Category) Template(id uuid.UUID) (ContainerTemplate, bool) {
	for _, t := range c.Containers {
		if t.ID == id {
			return t, true
		}
	}
	return ContainerTemplate{}, false
}

// NormalizeCategoryName lowercases, trims and drops a single trailing "s" so that
// "Gummies", "gummie" and "GUMMIE " resolve to the same category.
func NormalizeCategoryName(name string) string {
	key := strings.ToLower(strings.Join(strings.Fields(name), " "))
	return strings.TrimSuffix(key, "s")
}

// Clone returns a deep copy of the category.
func (c Category) Clone() Category {
	out := c
	if c.Containers != nil {
		out.Containers = make(datatypes.JSONSlice[ContainerTemplate], len(c.Containers))
		for i, t := range c.Containers {
			if t.MinQuantity != nil {
				m := *t.MinQuantity
				t.MinQuantity = &m
			}
			out.Containers[i] = t
		}
	}
	return out
}
