package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sostrack/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ChangeChannel is the Redis pub/sub channel on which committed collection names
// are announced so every process refreshes its subscribers.
const ChangeChannel = "sostrack:changes"

// GormStore is the PostgreSQL driver. Commits run in one database transaction;
// change notification fans out through Redis when a client is configured and
// falls back to in-process refresh otherwise.
type GormStore struct {
	db     *gorm.DB
	rdb    *redis.Client
	hub    *hub
	cancel context.CancelFunc
	done   chan struct{}
}

var _ Store = (*GormStore)(nil)

// NewGormStore wires the driver. With a non-nil rdb it starts listening on
// ChangeChannel until Close.
func NewGormStore(db *gorm.DB, rdb *redis.Client) *GormStore {
	s := &GormStore{db: db, rdb: rdb, hub: newHub()}
	if rdb != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.done = make(chan struct{})
		sub := rdb.Subscribe(ctx, ChangeChannel)
		go s.listen(ctx, sub)
	}
	return s
}

// DB exposes the underlying *gorm.DB for health checks and tests.
func (s *GormStore) DB() *gorm.DB { return s.db }

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

func (s *GormStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	var out []model.Category
	err := s.db.WithContext(ctx).Order("name ASC").Find(&out).Error
	return out, err
}

func (s *GormStore) FindCategory(ctx context.Context, id uuid.UUID) (*model.Category, error) {
	var c model.Category
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return &c, nil
}

func (s *GormStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	var out []model.Product
	err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&out).Error
	return out, err
}

func (s *GormStore) FindProduct(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var p model.Product
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return &p, nil
}

func (s *GormStore) ListBatches(ctx context.Context) ([]model.Batch, error) {
	var out []model.Batch
	err := s.db.WithContext(ctx).Order("started_at DESC, id ASC").Find(&out).Error
	return out, err
}

func (s *GormStore) FindBatch(ctx context.Context, id uuid.UUID) (*model.Batch, error) {
	var b model.Batch
	if err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return &b, nil
}

func (s *GormStore) ListHistory(ctx context.Context, filter HistoryFilter) ([]model.InventoryHistory, error) {
	q := s.db.WithContext(ctx).Model(&model.InventoryHistory{})
	if filter.ProductID != nil {
		q = q.Where("product_id = ?", *filter.ProductID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var out []model.InventoryHistory
	err := q.Order("created_at DESC").Find(&out).Error
	return out, err
}

func (s *GormStore) ListCSVFiles(ctx context.Context) ([]model.CSVFile, error) {
	var out []model.CSVFile
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error
	return out, err
}

func (s *GormStore) FindCSVFile(ctx context.Context, id uuid.UUID) (*model.CSVFile, error) {
	var f model.CSVFile
	if err := s.db.WithContext(ctx).First(&f, "id = ?", id).Error; err != nil {
		return nil, mapGormErr(err)
	}
	return &f, nil
}

// Commit applies ws inside a single transaction. Guard failures abort the
// transaction with ErrConflict / ErrNotFound so nothing is applied.
func (s *GormStore) Commit(ctx context.Context, ws *WriteSet) error {
	if ws == nil || ws.Empty() {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return applyWriteSet(tx, ws, time.Now().UTC())
	})
	if err != nil {
		return mapGormErr(err)
	}
	s.announce(ctx, ws.Touched())
	return nil
}

func applyWriteSet(tx *gorm.DB, ws *WriteSet, now time.Time) error {
	if len(ws.categoryCreates) > 0 {
		if err := tx.Create(&ws.categoryCreates).Error; err != nil {
			return fmt.Errorf("create categories: %w", err)
		}
	}
	for _, c := range ws.categoryUpdates {
		c.UpdatedAt = now
		res := tx.Model(&model.Category{ID: c.ID}).
			Select("name", "name_key", "sku_prefix", "containers", "updated_at").
			Updates(&c)
		if res.Error != nil {
			return fmt.Errorf("update category: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
	}

	if len(ws.productCreates) > 0 {
		creates := make([]model.Product, len(ws.productCreates))
		for i, p := range ws.productCreates {
			p.Version = 1
			creates[i] = p
		}
		if err := tx.Create(&creates).Error; err != nil {
			return fmt.Errorf("create products: %w", err)
		}
	}
	for _, p := range ws.productUpdates {
		res := tx.Model(&model.Product{}).
			Where("id = ? AND version = ?", p.ID, p.Version).
			Updates(map[string]any{
				"flavor":              p.Flavor,
				"sku_suffix":          p.SKUSuffix,
				"container_inventory": p.ContainerInventory,
				"version":             p.Version + 1,
				"updated_at":          now,
			})
		if res.Error != nil {
			return fmt.Errorf("update product: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return missingOrStale(tx, &model.Product{}, p.ID)
		}
	}
	if len(ws.productDeletes) > 0 {
		if err := tx.Where("product_id IN ?", ws.productDeletes).Delete(&model.Batch{}).Error; err != nil {
			return fmt.Errorf("cascade batches: %w", err)
		}
		res := tx.Where("id IN ?", ws.productDeletes).Delete(&model.Product{})
		if res.Error != nil {
			return fmt.Errorf("delete products: %w", res.Error)
		}
		if res.RowsAffected != int64(len(ws.productDeletes)) {
			return ErrNotFound
		}
	}

	if len(ws.batchCreates) > 0 {
		if err := tx.Create(&ws.batchCreates).Error; err != nil {
			return fmt.Errorf("create batches: %w", err)
		}
	}
	for _, t := range ws.batchTransitions {
		b := t.Batch
		res := tx.Model(&model.Batch{ID: b.ID}).
			Where("status = ?", t.From).
			Select("status", "request", "final_count", "status_changed_at", "ready_at").
			Updates(&b)
		if res.Error != nil {
			return fmt.Errorf("transition batch: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return missingOrStale(tx, &model.Batch{}, b.ID)
		}
	}
	if len(ws.batchDeletes) > 0 {
		if err := tx.Where("id IN ?", ws.batchDeletes).Delete(&model.Batch{}).Error; err != nil {
			return fmt.Errorf("delete batches: %w", err)
		}
	}

	if len(ws.history) > 0 {
		if err := tx.Create(&ws.history).Error; err != nil {
			return fmt.Errorf("append history: %w", err)
		}
	}
	for _, f := range ws.csvFiles {
		f.UpdatedAt = now
		if err := tx.Save(&f).Error; err != nil {
			return fmt.Errorf("save csv file: %w", err)
		}
	}
	return nil
}

// missingOrStale tells a vanished row apart from a guard mismatch.
func missingOrStale(tx *gorm.DB, m any, id uuid.UUID) error {
	var n int64
	if err := tx.Model(m).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func mapGormErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	}
	return err
}

// Subscribe registers onChange for coll and pushes the current contents.
func (s *GormStore) Subscribe(coll Collection, onChange func(Snapshot)) func() {
	return s.hub.subscribe(coll, onChange, func() (Snapshot, bool) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		snap, err := LoadSnapshot(ctx, s, coll)
		if err != nil {
			log.Error().Err(err).Str("collection", string(coll)).Msg("store: initial snapshot failed")
			return snap, false
		}
		return snap, true
	})
}

// announce publishes the touched collections. Without Redis, local subscribers
// are refreshed directly.
func (s *GormStore) announce(ctx context.Context, colls []Collection) {
	for _, coll := range colls {
		if s.rdb == nil {
			s.refresh(coll)
			continue
		}
		if err := s.rdb.Publish(context.WithoutCancel(ctx), ChangeChannel, string(coll)).Err(); err != nil {
			log.Warn().Err(err).Str("collection", string(coll)).Msg("store: publish change failed, refreshing locally")
			s.refresh(coll)
		}
	}
}

func (s *GormStore) listen(ctx context.Context, sub *redis.PubSub) {
	defer close(s.done)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.refresh(Collection(msg.Payload))
		}
	}
}

func (s *GormStore) refresh(coll Collection) {
	s.hub.publish(coll, func() (Snapshot, bool) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		snap, err := LoadSnapshot(ctx, s, coll)
		if err != nil {
			log.Error().Err(err).Str("collection", string(coll)).Msg("store: refresh failed")
			return snap, false
		}
		return snap, true
	})
}
