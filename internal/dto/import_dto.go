package dto

import (
	"time"

	"sostrack/internal/csvimport"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type PreviewRequest struct {
	Rows []csvimport.Row `json:"rows" validate:"required"`
}

// CommitRequest applies reviewed rows. When Content is set the source file is
// stored alongside and referenced from every history entry.
type CommitRequest struct {
	Rows     []csvimport.Row `json:"rows"      validate:"required"`
	FileName string          `json:"file_name" validate:"omitempty,max=255"`
	Content  string          `json:"content"`
}

type ReplaceCSVFileRequest struct {
	FileName string `json:"file_name" validate:"omitempty,max=255"`
	Content  string `json:"content"   validate:"required"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type ParseResponse struct {
	FileName   string          `json:"file_name"`
	SourceRows int             `json:"source_rows"`
	Rows       []csvimport.Row `json:"rows"`
	Unresolved int             `json:"unresolved"`
	Content    string          `json:"content"`
}

// PreviewLine is the effect of an import on one product container.
type PreviewLine struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	TemplateID  string `json:"template_id"`
	Container   string `json:"container"`
	CurrentQty  int    `json:"current_qty"`
	Deduction   int    `json:"deduction"`
	FinalQty    int    `json:"final_qty"`
	Negative    bool   `json:"negative"`
}

type PreviewResponse struct {
	Lines    []PreviewLine `json:"lines"`
	Skipped  int           `json:"skipped"`
	Negative bool          `json:"negative"`
}

type CommitResponse struct {
	Applied        int           `json:"applied"`
	Skipped        int           `json:"skipped"`
	HistoryEntries int           `json:"history_entries"`
	CSVFileID      *string       `json:"csv_file_id"`
	Lines          []PreviewLine `json:"lines"`
}

type CSVFileResponse struct {
	ID        string    `json:"id"`
	FileName  string    `json:"file_name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
