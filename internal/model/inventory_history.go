package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ChangeType tags the origin of an inventory history entry.
type ChangeType string

const (
	ChangeManualEdit ChangeType = "Manual Edit"
	ChangeCSVImport  ChangeType = "CSV Import"
)

// InventoryHistory is an immutable audit record. Rows are append-only.
//
// Details holds the full resulting inventory array for manual edits and the raw
// matched import row for CSV imports.
type InventoryHistory struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ProductID   uuid.UUID      `gorm:"type:uuid;not null;index"`
	ProductName string         `gorm:"not null"`
	ChangeType  ChangeType     `gorm:"type:varchar(20);not null"`
	Details     datatypes.JSON `gorm:"type:jsonb"`
	CSVFileID   *uuid.UUID     `gorm:"type:uuid"`
	CreatedAt   time.Time      `gorm:"index"`
}

func (InventoryHistory) TableName() string { return "inventory_history" }

// CSVFile is the verbatim copy of an imported sales export.
type CSVFile struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	FileName  string    `gorm:"not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CSVFile) TableName() string { return "csv_files" }
