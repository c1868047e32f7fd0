package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"sostrack/internal/csvimport"
	"sostrack/internal/dto"
	"sostrack/internal/model"
	"sostrack/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ImportService reconciles a sales export against on-hand inventory.
type ImportService interface {
	Parse(ctx context.Context, fileName string, r io.Reader) (*dto.ParseResponse, error)
	Preview(ctx context.Context, req dto.PreviewRequest) (*dto.PreviewResponse, error)
	Commit(ctx context.Context, req dto.CommitRequest) (*dto.CommitResponse, error)
	GetFile(ctx context.Context, id uuid.UUID) (*dto.CSVFileResponse, error)
	ReplaceFile(ctx context.Context, id uuid.UUID, req dto.ReplaceCSVFileRequest) (*dto.CSVFileResponse, error)
}

type importService struct {
	store  repository.Store
	ledger *Ledger
}

func NewImportService(store repository.Store, ledger *Ledger) ImportService {
	return &importService{store: store, ledger: ledger}
}

// Parse reads the file, groups duplicate lines and pre-fills assignments that can
// be inferred: the product by name and the container by SKU suffix. The raw text
// is returned so the client can send it back with the commit.
func (s *importService) Parse(ctx context.Context, fileName string, r io.Reader) (*dto.ParseResponse, error) {
	var content strings.Builder
	rows, err := csvimport.Parse(io.TeeReader(r, &content))
	if err != nil {
		return nil, invalidf("%s: %v", fileName, err)
	}
	sourceRows := len(rows)
	grouped := csvimport.Group(rows)

	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	cats, err := categoryIndex(ctx, s.store)
	if err != nil {
		return nil, err
	}

	unresolved := 0
	for i := range grouped {
		row := &grouped[i]
		if id, ok := csvimport.SuggestProduct(*row, products, cats); ok {
			row.AssignedProductID = &id
			if p := findProduct(products, id); p != nil {
				if tid, ok := csvimport.ResolveContainer(*row, cats[p.CategoryID]); ok {
					row.AssignedContainerID = &tid
				}
			}
		}
		if row.AssignedProductID == nil || row.AssignedContainerID == nil {
			unresolved++
		}
	}
	csvimport.SortForReview(grouped)

	log.Info().
		Str("file", fileName).
		Int("source_rows", sourceRows).
		Int("grouped_rows", len(grouped)).
		Int("unresolved", unresolved).
		Msg("import: parsed")
	return &dto.ParseResponse{
		FileName:   fileName,
		SourceRows: sourceRows,
		Rows:       grouped,
		Unresolved: unresolved,
		Content:    content.String(),
	}, nil
}

// plannedRow is one resolved row with the quantities it moves.
type plannedRow struct {
	row      csvimport.Row
	product  *model.Product
	template model.ContainerTemplate
	before   int
	after    int
}

// plan is the effect of a set of rows on the products they touch. Products are
// working copies; deductions for the same product+container accumulate on them.
type plan struct {
	rows     []plannedRow
	lines    []dto.PreviewLine
	products []*model.Product
	cats     map[uuid.UUID]model.Category
	before   map[uuid.UUID]model.Product
	skipped  int
}

func (s *importService) buildPlan(ctx context.Context, rows []csvimport.Row) (*plan, error) {
	cats, err := categoryIndex(ctx, s.store)
	if err != nil {
		return nil, err
	}
	pl := &plan{cats: cats, before: make(map[uuid.UUID]model.Product)}
	loaded := make(map[uuid.UUID]*model.Product)
	lineAt := make(map[[2]uuid.UUID]int)

	for _, row := range rows {
		if row.AssignedProductID == nil || row.Quantity <= 0 {
			pl.skipped++
			continue
		}
		p, ok := loaded[*row.AssignedProductID]
		if !ok {
			found, err := s.store.FindProduct(ctx, *row.AssignedProductID)
			if errors.Is(err, repository.ErrNotFound) {
				pl.skipped++
				continue
			}
			if err != nil {
				return nil, err
			}
			p = found
			loaded[p.ID] = p
			pl.before[p.ID] = p.Clone()
			pl.products = append(pl.products, p)
		}
		cat := cats[p.CategoryID]
		tid, ok := csvimport.ResolveContainer(row, cat)
		if !ok {
			pl.skipped++
			continue
		}
		tmpl, _ := cat.Template(tid)

		before := p.Quantity(tid)
		after := before - row.Quantity
		p.SetQuantity(tid, after)
		pl.rows = append(pl.rows, plannedRow{row: row, product: p, template: tmpl, before: before, after: after})

		key := [2]uuid.UUID{p.ID, tid}
		i, seen := lineAt[key]
		if !seen {
			i = len(pl.lines)
			lineAt[key] = i
			pl.lines = append(pl.lines, dto.PreviewLine{
				ProductID:   p.ID.String(),
				ProductName: p.DisplayName(cat.Name),
				TemplateID:  tid.String(),
				Container:   tmpl.Name,
				CurrentQty:  before,
			})
		}
		line := &pl.lines[i]
		line.Deduction += row.Quantity
		line.FinalQty = after
		line.Negative = after < 0
	}
	return pl, nil
}

func (pl *plan) negative() bool {
	for _, l := range pl.lines {
		if l.Negative {
			return true
		}
	}
	return false
}

// Preview reports what Commit would do without writing anything.
func (s *importService) Preview(ctx context.Context, req dto.PreviewRequest) (*dto.PreviewResponse, error) {
	pl, err := s.buildPlan(ctx, req.Rows)
	if err != nil {
		return nil, err
	}
	return &dto.PreviewResponse{Lines: pl.lines, Skipped: pl.skipped, Negative: pl.negative()}, nil
}

type importDetails struct {
	Row            map[string]string `json:"row"`
	TemplateID     string            `json:"container_template_id"`
	Container      string            `json:"container"`
	Deducted       int               `json:"deducted"`
	QuantityBefore int               `json:"quantity_before"`
	QuantityAfter  int               `json:"quantity_after"`
}

// Commit deducts every resolved row from inventory without clamping, appends one
// "CSV Import" history entry per row and stores the source file, all in a
// single write.
func (s *importService) Commit(ctx context.Context, req dto.CommitRequest) (resp *dto.CommitResponse, err error) {
	ctx, span := tracer.Start(ctx, "import.commit")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	pl, err := s.buildPlan(ctx, req.Rows)
	if err != nil {
		return nil, err
	}
	if len(pl.rows) == 0 {
		return &dto.CommitResponse{Skipped: pl.skipped, Lines: []dto.PreviewLine{}}, nil
	}

	ws := repository.NewWriteSet()
	var fileID *uuid.UUID
	if req.Content != "" {
		id := uuid.New()
		fileID = &id
		ws.PutCSVFile(model.CSVFile{ID: id, FileName: req.FileName, Content: req.Content})
	}

	for _, r := range pl.rows {
		s.ledger.SetEntry(ws, r.product, r.template.ID, r.product.Quantity(r.template.ID))
	}

	now := s.ledger.now()
	for _, r := range pl.rows {
		details, err := json.Marshal(importDetails{
			Row:            r.row.Raw,
			TemplateID:     r.template.ID.String(),
			Container:      r.template.Name,
			Deducted:       r.row.Quantity,
			QuantityBefore: r.before,
			QuantityAfter:  r.after,
		})
		if err != nil {
			return nil, err
		}
		ws.AppendHistory(model.InventoryHistory{
			ID:          uuid.New(),
			ProductID:   r.product.ID,
			ProductName: r.product.DisplayName(pl.cats[r.product.CategoryID].Name),
			ChangeType:  model.ChangeCSVImport,
			Details:     details,
			CSVFileID:   fileID,
			CreatedAt:   now,
		})
	}

	span.SetAttributes(
		attribute.Int("rows", len(pl.rows)),
		attribute.Int("products", len(pl.products)),
		attribute.Int("skipped", pl.skipped),
	)
	if err := s.store.Commit(ctx, ws); err != nil {
		log.Error().Err(err).Int("rows", len(pl.rows)).Msg("import: commit failed")
		return nil, commitErr("import commit", err)
	}

	for _, p := range pl.products {
		s.ledger.AlertCrossings(ctx, pl.cats[p.CategoryID], pl.before[p.ID], *p)
	}

	out := &dto.CommitResponse{
		Applied:        len(pl.rows),
		Skipped:        pl.skipped,
		HistoryEntries: len(pl.rows),
		Lines:          pl.lines,
	}
	if fileID != nil {
		id := fileID.String()
		out.CSVFileID = &id
	}
	log.Info().
		Int("applied", out.Applied).
		Int("skipped", out.Skipped).
		Bool("negative", pl.negative()).
		Msg("import: committed")
	return out, nil
}

func (s *importService) GetFile(ctx context.Context, id uuid.UUID) (*dto.CSVFileResponse, error) {
	f, err := s.store.FindCSVFile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("csv file %s: %w", id, err)
	}
	resp := toCSVFileResponse(*f)
	return &resp, nil
}

// ReplaceFile overwrites the stored content of an existing file.
func (s *importService) ReplaceFile(ctx context.Context, id uuid.UUID, req dto.ReplaceCSVFileRequest) (*dto.CSVFileResponse, error) {
	f, err := s.store.FindCSVFile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("csv file %s: %w", id, err)
	}
	f.Content = req.Content
	if req.FileName != "" {
		f.FileName = req.FileName
	}
	ws := repository.NewWriteSet()
	ws.PutCSVFile(*f)
	if err := s.store.Commit(ctx, ws); err != nil {
		return nil, commitErr("replace csv file", err)
	}
	return s.GetFile(ctx, id)
}

func findProduct(products []model.Product, id uuid.UUID) *model.Product {
	for i := range products {
		if products[i].ID == id {
			return &products[i]
		}
	}
	return nil
}

func toCSVFileResponse(f model.CSVFile) dto.CSVFileResponse {
	return dto.CSVFileResponse{
		ID:        f.ID.String(),
		FileName:  f.FileName,
		Content:   f.Content,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}
