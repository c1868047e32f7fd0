package service

import (
	"context"
	"sync"

	"sostrack/internal/model"
	"sostrack/internal/repository"
	"sostrack/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// StatusChangeNotifier queues batch status notifications. *worker.Dispatcher
// satisfies it.
type StatusChangeNotifier interface {
	EnqueueStatusChange(ctx context.Context, p worker.StatusChangePayload) error
}

// StatusWatcher follows the batch collection. Every snapshot first runs the
// Ready sweep over it; then each batch whose status differs from the previous
// snapshot produces one notification. The first snapshot only seeds the map.
type StatusWatcher struct {
	store    repository.Store
	batches  BatchService
	notifier StatusChangeNotifier

	mu          sync.Mutex
	ctx         context.Context
	previous    map[uuid.UUID]model.BatchStatus
	seeded      bool
	unsubscribe func()
}

func NewStatusWatcher(store repository.Store, batches BatchService, notifier StatusChangeNotifier) *StatusWatcher {
	return &StatusWatcher{store: store, batches: batches, notifier: notifier}
}

// Start subscribes to batches. Calling Start twice is a no-op.
func (w *StatusWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.unsubscribe != nil {
		w.mu.Unlock()
		return
	}
	w.ctx = ctx
	w.previous = make(map[uuid.UUID]model.BatchStatus)
	w.seeded = false
	w.unsubscribe = func() {}
	w.mu.Unlock()

	unsub := w.store.Subscribe(repository.CollectionBatches, w.onSnapshot)

	w.mu.Lock()
	w.unsubscribe = unsub
	w.mu.Unlock()
	log.Info().Msg("watcher: subscribed to batches")
}

// Stop unsubscribes and drops the remembered statuses.
func (w *StatusWatcher) Stop() {
	w.mu.Lock()
	unsub := w.unsubscribe
	w.unsubscribe = nil
	w.previous = nil
	w.seeded = false
	w.mu.Unlock()
	if unsub != nil {
		unsub()
		log.Info().Msg("watcher: stopped")
	}
}

func (w *StatusWatcher) onSnapshot(snap repository.Snapshot) {
	w.mu.Lock()
	ctx := w.ctx
	running := w.previous != nil
	w.mu.Unlock()
	if !running {
		return
	}

	// A sweep that completes anything commits and produces a newer snapshot,
	// which carries the resulting transitions.
	n, err := w.batches.SweepBatches(ctx, snap.Batches)
	if err != nil {
		log.Error().Err(err).Msg("watcher: sweep failed")
	}
	if n > 0 {
		return
	}

	var changed []worker.StatusChangePayload
	w.mu.Lock()
	if w.previous == nil {
		w.mu.Unlock()
		return
	}
	current := make(map[uuid.UUID]model.BatchStatus, len(snap.Batches))
	for _, b := range snap.Batches {
		current[b.ID] = b.Status
		prev, known := w.previous[b.ID]
		if !w.seeded || !known || prev == b.Status {
			continue
		}
		p := worker.StatusChangePayload{
			BatchID:   b.ID.String(),
			ProductID: b.ProductID.String(),
			From:      string(prev),
			To:        string(b.Status),
		}
		if b.StatusChangedAt != nil {
			p.ChangedAt = *b.StatusChangedAt
		}
		changed = append(changed, p)
	}
	w.previous = current
	w.seeded = true
	w.mu.Unlock()

	for _, p := range changed {
		p.ProductName = w.productName(ctx, p.ProductID)
		if err := w.notifier.EnqueueStatusChange(ctx, p); err != nil {
			log.Warn().Err(err).Str("batch_id", p.BatchID).Msg("watcher: status change not queued")
			continue
		}
		log.Debug().Str("batch_id", p.BatchID).Str("from", p.From).Str("to", p.To).Msg("watcher: status change queued")
	}
}

func (w *StatusWatcher) productName(ctx context.Context, productID string) string {
	id, err := uuid.Parse(productID)
	if err != nil {
		return ""
	}
	p, err := w.store.FindProduct(ctx, id)
	if err != nil {
		return ""
	}
	cat, err := w.store.FindCategory(ctx, p.CategoryID)
	if err != nil {
		return p.Flavor
	}
	return p.DisplayName(cat.Name)
}
