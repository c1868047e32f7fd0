package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"sostrack/internal/model"

	"github.com/google/uuid"
)

// MemoryStore keeps every collection in process memory. Reads return copies,
// commits are validated in full before anything is applied, and subscribers are
// called synchronously after the lock is released.
type MemoryStore struct {
	mu         sync.RWMutex
	categories map[uuid.UUID]model.Category
	products   map[uuid.UUID]model.Product
	batches    map[uuid.UUID]model.Batch
	history    []model.InventoryHistory
	csvFiles   map[uuid.UUID]model.CSVFile

	hub     *hub
	nowFn   func() time.Time
	failErr error
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		categories: make(map[uuid.UUID]model.Category),
		products:   make(map[uuid.UUID]model.Product),
		batches:    make(map[uuid.UUID]model.Batch),
		csvFiles:   make(map[uuid.UUID]model.CSVFile),
		hub:        newHub(),
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
}

// FailCommits makes every following Commit return err without applying anything.
// Pass nil to restore normal behaviour.
func (s *MemoryStore) FailCommits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }

func (s *MemoryStore) ListCategories(context.Context) ([]model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) FindCategory(_ context.Context, id uuid.UUID) (*model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	c = c.Clone()
	return &c, nil
}

func (s *MemoryStore) ListProducts(context.Context) ([]model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryStore) FindProduct(_ context.Context, id uuid.UUID) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	p = p.Clone()
	return &p, nil
}

func (s *MemoryStore) ListBatches(context.Context) ([]model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Batch, 0, len(s.batches))
	for _, b := range s.batches {
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryStore) FindBatch(_ context.Context, id uuid.UUID) (*model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, ErrNotFound
	}
	b = b.Clone()
	return &b, nil
}

func (s *MemoryStore) ListHistory(_ context.Context, filter HistoryFilter) ([]model.InventoryHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.InventoryHistory, 0)
	// stored oldest first
	for i := len(s.history) - 1; i >= 0; i-- {
		h := s.history[i]
		if filter.ProductID != nil && h.ProductID != *filter.ProductID {
			continue
		}
		out = append(out, h)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) ListCSVFiles(context.Context) ([]model.CSVFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CSVFile, 0, len(s.csvFiles))
	for _, f := range s.csvFiles {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) FindCSVFile(_ context.Context, id uuid.UUID) (*model.CSVFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.csvFiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

// Commit validates every staged write against current state, then applies all of
// them. A failed validation leaves the store untouched.
func (s *MemoryStore) Commit(ctx context.Context, ws *WriteSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ws == nil || ws.Empty() {
		return nil
	}

	s.mu.Lock()
	if s.failErr != nil {
		err := s.failErr
		s.mu.Unlock()
		return err
	}
	if err := s.validateLocked(ws); err != nil {
		s.mu.Unlock()
		return err
	}
	s.applyLocked(ws)
	s.mu.Unlock()

	for _, coll := range ws.Touched() {
		s.notify(ctx, coll)
	}
	return nil
}

func (s *MemoryStore) validateLocked(ws *WriteSet) error {
	keys := make(map[string]uuid.UUID, len(s.categories))
	for id, c := range s.categories {
		keys[c.NameKey] = id
	}
	for _, c := range ws.categoryCreates {
		if _, exists := s.categories[c.ID]; exists {
			return ErrConflict
		}
		if _, taken := keys[c.NameKey]; taken {
			return ErrConflict
		}
		keys[c.NameKey] = c.ID
	}
	for _, c := range ws.categoryUpdates {
		if _, ok := s.categories[c.ID]; !ok {
			return ErrNotFound
		}
	}
	for _, p := range ws.productCreates {
		if _, exists := s.products[p.ID]; exists {
			return ErrConflict
		}
	}
	for _, p := range ws.productUpdates {
		cur, ok := s.products[p.ID]
		if !ok {
			return ErrNotFound
		}
		if cur.Version != p.Version {
			return ErrConflict
		}
	}
	for _, id := range ws.productDeletes {
		if _, ok := s.products[id]; !ok {
			return ErrNotFound
		}
	}
	for _, b := range ws.batchCreates {
		if _, exists := s.batches[b.ID]; exists {
			return ErrConflict
		}
	}
	for _, t := range ws.batchTransitions {
		cur, ok := s.batches[t.Batch.ID]
		if !ok {
			return ErrNotFound
		}
		if cur.Status != t.From {
			return ErrConflict
		}
	}
	return nil
}

func (s *MemoryStore) applyLocked(ws *WriteSet) {
	now := s.nowFn()

	for _, c := range ws.categoryCreates {
		c = c.Clone()
		stampCreate(&c.CreatedAt, &c.UpdatedAt, now)
		s.categories[c.ID] = c
	}
	for _, c := range ws.categoryUpdates {
		c = c.Clone()
		c.CreatedAt = s.categories[c.ID].CreatedAt
		c.UpdatedAt = now
		s.categories[c.ID] = c
	}
	for _, p := range ws.productCreates {
		p = p.Clone()
		p.Version = 1
		stampCreate(&p.CreatedAt, &p.UpdatedAt, now)
		s.products[p.ID] = p
	}
	for _, p := range ws.productUpdates {
		p = p.Clone()
		p.CreatedAt = s.products[p.ID].CreatedAt
		p.Version++
		p.UpdatedAt = now
		s.products[p.ID] = p
	}
	for _, id := range ws.productDeletes {
		delete(s.products, id)
		for bid, b := range s.batches {
			if b.ProductID == id {
				delete(s.batches, bid)
			}
		}
	}
	for _, b := range ws.batchCreates {
		s.batches[b.ID] = b.Clone()
	}
	for _, t := range ws.batchTransitions {
		s.batches[t.Batch.ID] = t.Batch.Clone()
	}
	for _, id := range ws.batchDeletes {
		delete(s.batches, id)
	}
	for _, h := range ws.history {
		if h.CreatedAt.IsZero() {
			h.CreatedAt = now
		}
		s.history = append(s.history, h)
	}
	for _, f := range ws.csvFiles {
		if prev, ok := s.csvFiles[f.ID]; ok {
			f.CreatedAt = prev.CreatedAt
		} else if f.CreatedAt.IsZero() {
			f.CreatedAt = now
		}
		f.UpdatedAt = now
		s.csvFiles[f.ID] = f
	}
}

func stampCreate(created, updated *time.Time, now time.Time) {
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

// Subscribe delivers the current contents of coll immediately and after every
// commit that touches it.
func (s *MemoryStore) Subscribe(coll Collection, onChange func(Snapshot)) func() {
	return s.hub.subscribe(coll, onChange, func() (Snapshot, bool) {
		snap, err := LoadSnapshot(context.Background(), s, coll)
		return snap, err == nil
	})
}

func (s *MemoryStore) notify(ctx context.Context, coll Collection) {
	s.hub.publish(coll, func() (Snapshot, bool) {
		snap, err := LoadSnapshot(context.WithoutCancel(ctx), s, coll)
		return snap, err == nil
	})
}
