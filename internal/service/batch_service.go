package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sostrack/internal/dto"
	"sostrack/internal/model"
	"sostrack/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("sostrack/service")

// DefaultRetention is how long a Ready batch stays visible before the sweep completes it.
const DefaultRetention = 24 * time.Hour

// BatchService drives the production lifecycle:
// Requested → Make → Package → Ready → Completed.
type BatchService interface {
	RequestRun(ctx context.Context, req dto.StartRunRequest) (*dto.BatchResponse, error)
	Begin(ctx context.Context, id uuid.UUID) (*dto.BatchResponse, error)
	StartRun(ctx context.Context, req dto.StartRunRequest) (*dto.BatchResponse, error)
	MarkPackaged(ctx context.Context, id uuid.UUID) (*dto.BatchResponse, error)
	Finalize(ctx context.Context, id uuid.UUID, req dto.FinalizeRequest) (*dto.BatchResponse, error)
	SweepReady(ctx context.Context) (int, error)
	SweepBatches(ctx context.Context, batches []model.Batch) (int, error)
	BulkDelete(ctx context.Context, ids []uuid.UUID) (int, error)
	List(ctx context.Context) ([]dto.BatchResponse, error)
}

type batchService struct {
	store     repository.Store
	ledger    *Ledger
	retention time.Duration
	now       func() time.Time
}

func NewBatchService(store repository.Store, ledger *Ledger, retention time.Duration) BatchService {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &batchService{
		store:     store,
		ledger:    ledger,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RequestRun records a run that has been asked for but not started.
func (s *batchService) RequestRun(ctx context.Context, req dto.StartRunRequest) (*dto.BatchResponse, error) {
	return s.create(ctx, req, model.BatchRequested)
}

// StartRun opens a run directly in Make. No inventory effect.
func (s *batchService) StartRun(ctx context.Context, req dto.StartRunRequest) (*dto.BatchResponse, error) {
	return s.create(ctx, req, model.BatchMake)
}

func (s *batchService) create(ctx context.Context, req dto.StartRunRequest, status model.BatchStatus) (*dto.BatchResponse, error) {
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return nil, invalidf("product_id: %v", err)
	}
	p, err := s.store.FindProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("start run: product: %w", err)
	}
	cat, err := s.store.FindCategory(ctx, p.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("start run: category: %w", err)
	}

	request, err := buildRequest(req, *cat)
	if err != nil {
		return nil, err
	}

	now := s.now()
	b := model.Batch{
		ID:              uuid.New(),
		ProductID:       p.ID,
		CategoryID:      p.CategoryID,
		Status:          status,
		Request:         request,
		StartedAt:       now,
		StatusChangedAt: &now,
	}
	ws := repository.NewWriteSet()
	ws.CreateBatch(b)
	if err := s.store.Commit(ctx, ws); err != nil {
		return nil, commitErr("start run", err)
	}
	log.Info().
		Str("batch_id", b.ID.String()).
		Str("product_id", p.ID.String()).
		Str("status", string(status)).
		Msg("batch: run created")
	resp := toBatchResponse(b)
	return &resp, nil
}

func buildRequest(req dto.StartRunRequest, cat model.Category) (*model.BatchRequest, error) {
	out := &model.BatchRequest{BulkWeightOz: decimal.Zero}
	if req.BulkWeightOz != nil {
		if req.BulkWeightOz.IsNegative() {
			return nil, invalidf("bulk_weight_oz must not be negative")
		}
		out.BulkWeightOz = *req.BulkWeightOz
	}
	for _, c := range req.Containers {
		id, err := uuid.Parse(c.TemplateID)
		if err != nil {
			return nil, invalidf("template_id: %v", err)
		}
		if _, ok := cat.Template(id); !ok {
			return nil, invalidf("container %s does not belong to category %s", id, cat.Name)
		}
		if c.Quantity > 0 {
			out.Containers = append(out.Containers, model.ContainerCount{TemplateID: id, Quantity: c.Quantity})
		}
	}
	if len(out.Containers) == 0 && !out.BulkWeightOz.IsPositive() {
		return nil, invalidf("a run needs requested containers or a bulk weight")
	}
	return out, nil
}

// Begin moves a requested run into Make.
func (s *batchService) Begin(ctx context.Context, id uuid.UUID) (*dto.BatchResponse, error) {
	return s.advance(ctx, id, model.BatchRequested, model.BatchMake)
}

// MarkPackaged moves Make → Package. No inventory effect.
func (s *batchService) MarkPackaged(ctx context.Context, id uuid.UUID) (*dto.BatchResponse, error) {
	return s.advance(ctx, id, model.BatchMake, model.BatchPackage)
}

func (s *batchService) advance(ctx context.Context, id uuid.UUID, from, to model.BatchStatus) (*dto.BatchResponse, error) {
	b, err := s.store.FindBatch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("batch %s: %w", id, err)
	}
	if b.Status != from {
		return nil, fmt.Errorf("%w: batch %s is %s, expected %s", ErrInvalidTransition, id, b.Status, from)
	}
	now := s.now()
	b.Status = to
	b.StatusChangedAt = &now

	ws := repository.NewWriteSet()
	ws.TransitionBatch(*b, from)
	if err := s.store.Commit(ctx, ws); err != nil {
		return nil, commitErr("advance batch", err)
	}
	log.Info().Str("batch_id", id.String()).Str("from", string(from)).Str("to", string(to)).Msg("batch: status changed")
	resp := toBatchResponse(*b)
	return &resp, nil
}

// Finalize moves Package → Ready and adds the counted containers to the
// product's inventory in the same commit.
func (s *batchService) Finalize(ctx context.Context, id uuid.UUID, req dto.FinalizeRequest) (resp *dto.BatchResponse, err error) {
	ctx, span := tracer.Start(ctx, "batch.finalize", trace.WithAttributes(attribute.String("batch_id", id.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	b, err := s.store.FindBatch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("batch %s: %w", id, err)
	}
	if b.Status != model.BatchPackage {
		return nil, fmt.Errorf("%w: batch %s is %s, expected %s", ErrInvalidTransition, id, b.Status, model.BatchPackage)
	}
	p, err := s.store.FindProduct(ctx, b.ProductID)
	if err != nil {
		return nil, fmt.Errorf("finalize: product: %w", err)
	}
	cat, err := s.store.FindCategory(ctx, p.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("finalize: category: %w", err)
	}

	counts, err := parseFinalCount(req.FinalCount, *cat)
	if err != nil {
		return nil, err
	}

	ws := repository.NewWriteSet()
	for _, c := range counts {
		s.ledger.ApplyDelta(ws, p, c.TemplateID, c.Quantity, p.Quantity(c.TemplateID))
	}

	now := s.now()
	b.Status = model.BatchReady
	b.FinalCount = counts
	b.Request = nil
	b.ReadyAt = &now
	b.StatusChangedAt = &now
	ws.TransitionBatch(*b, model.BatchPackage)

	if err := s.store.Commit(ctx, ws); err != nil {
		log.Error().Err(err).Str("batch_id", id.String()).Msg("batch: finalize commit failed")
		return nil, commitErr("finalize", err)
	}

	produced := 0
	for _, c := range counts {
		produced += c.Quantity
	}
	span.SetAttributes(attribute.Int("produced", produced))
	log.Info().
		Str("batch_id", id.String()).
		Str("product_id", p.ID.String()).
		Int("produced", produced).
		Msg("batch: finalized")
	out := toBatchResponse(*b)
	return &out, nil
}

// parseFinalCount keeps entries whose quantity parses to a positive integer,
// summing repeats of the same template. A template outside the category is an error.
func parseFinalCount(entries []dto.FinalCountEntry, cat model.Category) ([]model.ContainerCount, error) {
	var out []model.ContainerCount
	pos := make(map[uuid.UUID]int)
	for _, e := range entries {
		qty, err := strconv.Atoi(strings.TrimSpace(string(e.Quantity)))
		if err != nil || qty <= 0 {
			continue
		}
		id, err := uuid.Parse(e.TemplateID)
		if err != nil {
			return nil, invalidf("container_template_id: %v", err)
		}
		if _, ok := cat.Template(id); !ok {
			return nil, invalidf("container %s does not belong to category %s", id, cat.Name)
		}
		if i, seen := pos[id]; seen {
			out[i].Quantity += qty
			continue
		}
		pos[id] = len(out)
		out = append(out, model.ContainerCount{TemplateID: id, Quantity: qty})
	}
	return out, nil
}

// SweepReady loads every batch and completes the expired Ready ones.
func (s *batchService) SweepReady(ctx context.Context) (int, error) {
	batches, err := s.store.ListBatches(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep: list batches: %w", err)
	}
	return s.SweepBatches(ctx, batches)
}

// SweepBatches completes, in one commit, every Ready batch in batches whose
// ready time is older than the retention window. Non-Ready batches are never
// touched, so repeated sweeps are no-ops. Losing a race to another sweep is
// reported as zero completed.
func (s *batchService) SweepBatches(ctx context.Context, batches []model.Batch) (int, error) {
	ctx, span := tracer.Start(ctx, "batch.sweep")
	defer span.End()

	now := s.now()
	ws := repository.NewWriteSet()
	n := 0
	for _, b := range batches {
		if b.Status != model.BatchReady || b.ReadyAt == nil {
			continue
		}
		if now.Sub(*b.ReadyAt) <= s.retention {
			continue
		}
		b = b.Clone()
		b.Status = model.BatchCompleted
		b.StatusChangedAt = &now
		ws.TransitionBatch(b, model.BatchReady)
		n++
	}
	span.SetAttributes(attribute.Int("candidates", n))
	if n == 0 {
		return 0, nil
	}
	if err := s.store.Commit(ctx, ws); err != nil {
		if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
			log.Debug().Err(err).Msg("batch: sweep raced with another writer")
			return 0, nil
		}
		span.RecordError(err)
		return 0, commitErr("sweep", err)
	}
	log.Info().Int("completed", n).Msg("batch: sweep completed ready batches")
	return n, nil
}

// BulkDelete removes batches in one commit. Inventory is left as is.
func (s *batchService) BulkDelete(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, invalidf("no batch ids given")
	}
	batches, err := s.store.ListBatches(ctx)
	if err != nil {
		return 0, fmt.Errorf("bulk delete: %w", err)
	}
	wanted := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	found := 0
	for _, b := range batches {
		if wanted[b.ID] {
			found++
		}
	}

	ws := repository.NewWriteSet()
	ws.DeleteBatches(ids...)
	if err := s.store.Commit(ctx, ws); err != nil {
		return 0, commitErr("bulk delete", err)
	}
	log.Info().Int("requested", len(ids)).Int("deleted", found).Msg("batch: bulk delete")
	return found, nil
}

func (s *batchService) List(ctx context.Context) ([]dto.BatchResponse, error) {
	batches, err := s.store.ListBatches(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.BatchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchResponse(b))
	}
	return out, nil
}
