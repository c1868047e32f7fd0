package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"sostrack/internal/dto"
	"sostrack/internal/model"
	"sostrack/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_FinalizeAddsCountedContainers(t *testing.T) {
	f := newFixture(t)
	f.setStock(t, 5, 0)
	id := f.packagedBatch(t)

	b, err := f.batches.Finalize(f.ctx, id, finalCount(f.jar, "3"))
	require.NoError(t, err)
	assert.Equal(t, string(model.BatchReady), b.Status)
	assert.Nil(t, b.Request)
	assert.NotNil(t, b.ReadyAt)
	assert.Equal(t, 8, f.quantity(t, f.jar))
}

func TestBatch_FinalizeTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	f.setStock(t, 5, 0)
	id := f.packagedBatch(t)

	_, err := f.batches.Finalize(f.ctx, id, finalCount(f.jar, "3"))
	require.NoError(t, err)
	_, err = f.batches.Finalize(f.ctx, id, finalCount(f.jar, "3"))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 8, f.quantity(t, f.jar))
}

func TestBatch_FinalizeParsesCounts(t *testing.T) {
	f := newFixture(t)
	id := f.packagedBatch(t)

	_, err := f.batches.Finalize(f.ctx, id, dto.FinalizeRequest{FinalCount: []dto.FinalCountEntry{
		{TemplateID: f.jar.String(), Quantity: "2"},
		{TemplateID: f.jar.String(), Quantity: " 1 "},
		{TemplateID: f.pouch.String(), Quantity: "abc"},
		{TemplateID: f.pouch.String(), Quantity: "-4"},
		{TemplateID: f.pouch.String(), Quantity: "0"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 3, f.quantity(t, f.jar))
	assert.Equal(t, 0, f.quantity(t, f.pouch))
}

func TestBatch_FinalizeRejectsForeignTemplate(t *testing.T) {
	f := newFixture(t)
	id := f.packagedBatch(t)

	_, err := f.batches.Finalize(f.ctx, id, finalCount(uuid.New(), "2"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	b, err := f.store.FindBatch(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.BatchPackage, b.Status)
}

func TestBatch_TransitionPreconditions(t *testing.T) {
	f := newFixture(t)
	b, err := f.batches.RequestRun(f.ctx, dto.StartRunRequest{
		ProductID:    f.product.ID.String(),
		BulkWeightOz: ptrDecimal(decimal.NewFromInt(32)),
	})
	require.NoError(t, err)
	id := uuid.MustParse(b.ID)
	assert.Equal(t, string(model.BatchRequested), b.Status)

	_, err = f.batches.MarkPackaged(f.ctx, id)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.batches.Finalize(f.ctx, id, finalCount(f.jar, "1"))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	b, err = f.batches.Begin(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, string(model.BatchMake), b.Status)
	_, err = f.batches.Begin(f.ctx, id)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.batches.MarkPackaged(f.ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBatch_StartRunValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.batches.StartRun(f.ctx, dto.StartRunRequest{ProductID: f.product.ID.String()})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.batches.StartRun(f.ctx, dto.StartRunRequest{
		ProductID:  f.product.ID.String(),
		Containers: []dto.ContainerCountDTO{{TemplateID: uuid.NewString(), Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.batches.StartRun(f.ctx, dto.StartRunRequest{ProductID: uuid.NewString(), BulkWeightOz: ptrDecimal(decimal.NewFromInt(1))})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBatch_SweepRetentionBoundary(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.batches.now = func() time.Time { return now }

	old := f.seedReady(t, now.Add(-25*time.Hour))
	recent := f.seedReady(t, now.Add(-23*time.Hour))

	n, err := f.batches.SweepReady(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	b, err := f.store.FindBatch(f.ctx, old)
	require.NoError(t, err)
	assert.Equal(t, model.BatchCompleted, b.Status)
	b, err = f.store.FindBatch(f.ctx, recent)
	require.NoError(t, err)
	assert.Equal(t, model.BatchReady, b.Status)
}

func TestBatch_SweepIsIdempotent(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	f.batches.now = func() time.Time { return now }
	for i := 0; i < 3; i++ {
		f.seedReady(t, now.Add(-48*time.Hour))
	}

	n, err := f.batches.SweepReady(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	first := completedIDs(t, f)

	n, err = f.batches.SweepReady(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, first, completedIDs(t, f))
}

func TestBatch_SweepOverStaleSetReportsZero(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	f.batches.now = func() time.Time { return now }
	f.seedReady(t, now.Add(-48*time.Hour))

	stale, err := f.store.ListBatches(f.ctx)
	require.NoError(t, err)
	_, err = f.batches.SweepReady(f.ctx)
	require.NoError(t, err)

	n, err := f.batches.SweepBatches(f.ctx, stale)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBatch_BulkDelete(t *testing.T) {
	f := newFixture(t)
	f.setStock(t, 5, 0)
	a := f.packagedBatch(t)
	_, err := f.batches.Finalize(f.ctx, a, finalCount(f.jar, "2"))
	require.NoError(t, err)
	b := f.packagedBatch(t)

	n, err := f.batches.BulkDelete(f.ctx, []uuid.UUID{a, b, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := f.batches.List(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	// inventory keeps what the finalized batch added
	assert.Equal(t, 7, f.quantity(t, f.jar))

	_, err = f.batches.BulkDelete(f.ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBatch_ConcurrentFinalizeAppliesOnce(t *testing.T) {
	f := newFixture(t)
	f.setStock(t, 5, 0)
	id := f.packagedBatch(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.batches.Finalize(f.ctx, id, finalCount(f.jar, "3"))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, repository.ErrConflict) || errors.Is(err, ErrInvalidTransition), err)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 8, f.quantity(t, f.jar))
}

func TestBatch_WriteFailureLeavesNothing(t *testing.T) {
	f := newFixture(t)
	f.setStock(t, 5, 0)
	id := f.packagedBatch(t)

	f.store.FailCommits(errors.New("disk full"))
	_, err := f.batches.Finalize(f.ctx, id, finalCount(f.jar, "3"))
	assert.ErrorIs(t, err, ErrWriteFailure)
	f.store.FailCommits(nil)

	assert.Equal(t, 5, f.quantity(t, f.jar))
	b, err := f.store.FindBatch(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.BatchPackage, b.Status)
}

func TestAggregateStatus(t *testing.T) {
	batch := func(s model.BatchStatus) model.Batch { return model.Batch{Status: s} }
	assert.Equal(t, model.StatusIdle, AggregateStatus(nil))
	assert.Equal(t, model.StatusIdle, AggregateStatus([]model.Batch{batch(model.BatchCompleted), batch(model.BatchRequested)}))
	assert.Equal(t, "Ready", AggregateStatus([]model.Batch{batch(model.BatchReady), batch(model.BatchCompleted)}))
	assert.Equal(t, "Package", AggregateStatus([]model.Batch{batch(model.BatchReady), batch(model.BatchPackage)}))
	assert.Equal(t, "Make", AggregateStatus([]model.Batch{batch(model.BatchPackage), batch(model.BatchMake), batch(model.BatchReady)}))
}

func completedIDs(t *testing.T, f *fixture) map[uuid.UUID]bool {
	t.Helper()
	batches, err := f.store.ListBatches(f.ctx)
	require.NoError(t, err)
	out := make(map[uuid.UUID]bool)
	for _, b := range batches {
		if b.Status == model.BatchCompleted {
			out[b.ID] = true
		}
	}
	return out
}

func ptrDecimal(d decimal.Decimal) *decimal.Decimal { return &d }
