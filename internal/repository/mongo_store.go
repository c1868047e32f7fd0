package repository

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"sostrack/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore is the MongoDB driver. Commits run in a multi-document transaction
// and subscribers are refreshed from a database change stream, so writes made by
// other processes are observed too. When change streams are unavailable the
// store refreshes local subscribers after its own commits.
type MongoStore struct {
	db        *mongo.Database
	hub       *hub
	streaming atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

var _ Store = (*MongoStore)(nil)

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db, hub: newHub()}
}

// Migrate creates the indexes the store relies on.
func (s *MongoStore) Migrate(ctx context.Context) error {
	indexes := map[Collection][]mongo.IndexModel{
		CollectionCategories: {
			{Keys: bson.D{{Key: "name_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		CollectionProducts: {
			{Keys: bson.D{{Key: "category_id", Value: 1}}},
		},
		CollectionBatches: {
			{Keys: bson.D{{Key: "product_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "ready_at", Value: 1}}},
		},
		CollectionHistory: {
			{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(string(coll)).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo: migrate %s indexes: %w", coll, err)
		}
	}
	return nil
}

// Watch starts the change stream listener. It returns an error when the
// deployment does not support change streams; the store keeps working with
// local refresh in that case.
func (s *MongoStore) Watch(ctx context.Context) error {
	cs, err := s.db.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return fmt.Errorf("mongo: watch: %w", err)
	}
	wctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.streaming.Store(true)
	go s.consume(wctx, cs)
	return nil
}

func (s *MongoStore) consume(ctx context.Context, cs *mongo.ChangeStream) {
	defer close(s.done)
	defer cs.Close(context.Background())
	for cs.Next(ctx) {
		var ev struct {
			NS struct {
				Coll string `bson:"coll"`
			} `bson:"ns"`
		}
		if err := cs.Decode(&ev); err != nil {
			log.Warn().Err(err).Msg("mongo: decode change event")
			continue
		}
		s.refresh(Collection(ev.NS.Coll))
	}
	if err := cs.Err(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("mongo: change stream stopped, falling back to local refresh")
	}
	s.streaming.Store(false)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

func (s *MongoStore) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return s.db.Client().Disconnect(context.Background())
}

func (s *MongoStore) col(c Collection) *mongo.Collection { return s.db.Collection(string(c)) }

func findAll[D any, M any](ctx context.Context, coll *mongo.Collection, filter any, opts *options.FindOptionsBuilder, conv func(D) M) ([]M, error) {
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []D
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]M, len(docs))
	for i, d := range docs {
		out[i] = conv(d)
	}
	return out, nil
}

func findOne[D any, M any](ctx context.Context, coll *mongo.Collection, id uuid.UUID, conv func(D) M) (*M, error) {
	var d D
	if err := coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	m := conv(d)
	return &m, nil
}

func (s *MongoStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	return findAll(ctx, s.col(CollectionCategories), bson.M{},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}), fromCategoryDoc)
}

func (s *MongoStore) FindCategory(ctx context.Context, id uuid.UUID) (*model.Category, error) {
	return findOne(ctx, s.col(CollectionCategories), id, fromCategoryDoc)
}

func (s *MongoStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	return findAll(ctx, s.col(CollectionProducts), bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}), fromProductDoc)
}

func (s *MongoStore) FindProduct(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	return findOne(ctx, s.col(CollectionProducts), id, fromProductDoc)
}

func (s *MongoStore) ListBatches(ctx context.Context) ([]model.Batch, error) {
	return findAll(ctx, s.col(CollectionBatches), bson.M{},
		options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}, {Key: "_id", Value: 1}}), fromBatchDoc)
}

func (s *MongoStore) FindBatch(ctx context.Context, id uuid.UUID) (*model.Batch, error) {
	return findOne(ctx, s.col(CollectionBatches), id, fromBatchDoc)
}

func (s *MongoStore) ListHistory(ctx context.Context, filter HistoryFilter) ([]model.InventoryHistory, error) {
	q := bson.M{}
	if filter.ProductID != nil {
		q["product_id"] = filter.ProductID.String()
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return findAll(ctx, s.col(CollectionHistory), q, opts, fromHistoryDoc)
}

func (s *MongoStore) ListCSVFiles(ctx context.Context) ([]model.CSVFile, error) {
	return findAll(ctx, s.col(CollectionCSVFiles), bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}), fromCSVFileDoc)
}

func (s *MongoStore) FindCSVFile(ctx context.Context, id uuid.UUID) (*model.CSVFile, error) {
	return findOne(ctx, s.col(CollectionCSVFiles), id, fromCSVFileDoc)
}

// Commit applies ws in one session transaction.
func (s *MongoStore) Commit(ctx context.Context, ws *WriteSet) error {
	if ws == nil || ws.Empty() {
		return nil
	}
	sess, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("mongo: start session: %w", err)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	now := time.Now().UTC()
	_, err = sess.WithTransaction(ctx, func(sc context.Context) (any, error) {
		return nil, s.apply(sc, ws, now)
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return err
	}
	if !s.streaming.Load() {
		for _, coll := range ws.Touched() {
			s.refresh(coll)
		}
	}
	return nil
}

func (s *MongoStore) apply(ctx context.Context, ws *WriteSet, now time.Time) error {
	for _, c := range ws.categoryCreates {
		stampCreate(&c.CreatedAt, &c.UpdatedAt, now)
		if _, err := s.col(CollectionCategories).InsertOne(ctx, toCategoryDoc(c)); err != nil {
			return fmt.Errorf("insert category: %w", err)
		}
	}
	for _, c := range ws.categoryUpdates {
		res, err := s.col(CollectionCategories).UpdateOne(ctx, bson.M{"_id": c.ID.String()}, bson.M{"$set": bson.M{
			"name":       c.Name,
			"name_key":   c.NameKey,
			"sku_prefix": c.SKUPrefix,
			"containers": toCategoryDoc(c).Containers,
			"updated_at": now,
		}})
		if err != nil {
			return fmt.Errorf("update category: %w", err)
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
	}

	for _, p := range ws.productCreates {
		p.Version = 1
		stampCreate(&p.CreatedAt, &p.UpdatedAt, now)
		if _, err := s.col(CollectionProducts).InsertOne(ctx, toProductDoc(p)); err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
	}
	for _, p := range ws.productUpdates {
		expected := p.Version
		p.Version++
		p.UpdatedAt = now
		res, err := s.col(CollectionProducts).ReplaceOne(ctx,
			bson.M{"_id": p.ID.String(), "version": expected}, toProductDoc(p))
		if err != nil {
			return fmt.Errorf("replace product: %w", err)
		}
		if res.MatchedCount == 0 {
			return s.missingOrStale(ctx, CollectionProducts, p.ID)
		}
	}
	if len(ws.productDeletes) > 0 {
		ids := idStrings(ws.productDeletes)
		if _, err := s.col(CollectionBatches).DeleteMany(ctx, bson.M{"product_id": bson.M{"$in": ids}}); err != nil {
			return fmt.Errorf("cascade batches: %w", err)
		}
		res, err := s.col(CollectionProducts).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
		if err != nil {
			return fmt.Errorf("delete products: %w", err)
		}
		if res.DeletedCount != int64(len(ids)) {
			return ErrNotFound
		}
	}

	if len(ws.batchCreates) > 0 {
		docs := make([]any, len(ws.batchCreates))
		for i, b := range ws.batchCreates {
			docs[i] = toBatchDoc(b)
		}
		if _, err := s.col(CollectionBatches).InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("insert batches: %w", err)
		}
	}
	for _, t := range ws.batchTransitions {
		res, err := s.col(CollectionBatches).ReplaceOne(ctx,
			bson.M{"_id": t.Batch.ID.String(), "status": string(t.From)}, toBatchDoc(t.Batch))
		if err != nil {
			return fmt.Errorf("transition batch: %w", err)
		}
		if res.MatchedCount == 0 {
			return s.missingOrStale(ctx, CollectionBatches, t.Batch.ID)
		}
	}
	if len(ws.batchDeletes) > 0 {
		if _, err := s.col(CollectionBatches).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": idStrings(ws.batchDeletes)}}); err != nil {
			return fmt.Errorf("delete batches: %w", err)
		}
	}

	if len(ws.history) > 0 {
		docs := make([]any, len(ws.history))
		for i, h := range ws.history {
			if h.CreatedAt.IsZero() {
				h.CreatedAt = now
			}
			docs[i] = toHistoryDoc(h)
		}
		if _, err := s.col(CollectionHistory).InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
	}
	for _, f := range ws.csvFiles {
		if f.CreatedAt.IsZero() {
			f.CreatedAt = now
		}
		f.UpdatedAt = now
		d := toCSVFileDoc(f)
		_, err := s.col(CollectionCSVFiles).UpdateOne(ctx, bson.M{"_id": d.ID}, bson.M{
			"$set":         bson.M{"file_name": d.FileName, "content": d.Content, "updated_at": d.UpdatedAt},
			"$setOnInsert": bson.M{"created_at": d.CreatedAt},
		}, options.UpdateOne().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("save csv file: %w", err)
		}
	}
	return nil
}

func (s *MongoStore) missingOrStale(ctx context.Context, coll Collection, id uuid.UUID) error {
	n, err := s.col(coll).CountDocuments(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func (s *MongoStore) Subscribe(coll Collection, onChange func(Snapshot)) func() {
	return s.hub.subscribe(coll, onChange, func() (Snapshot, bool) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		snap, err := LoadSnapshot(ctx, s, coll)
		if err != nil {
			log.Error().Err(err).Str("collection", string(coll)).Msg("mongo: initial snapshot failed")
			return snap, false
		}
		return snap, true
	})
}

func (s *MongoStore) refresh(coll Collection) {
	s.hub.publish(coll, func() (Snapshot, bool) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		snap, err := LoadSnapshot(ctx, s, coll)
		if err != nil {
			log.Error().Err(err).Str("collection", string(coll)).Msg("mongo: refresh failed")
			return snap, false
		}
		return snap, true
	})
}
