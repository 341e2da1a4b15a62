// Package mongo implements the document store on MongoDB. The attribute bag
// maps directly onto a sub-document, so the store evaluates predicates over
// schemaless fields without per-source code.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cliniscope/cliniscope/internal/storage"
	"github.com/cliniscope/cliniscope/internal/storage/config"
	"github.com/cliniscope/cliniscope/pkg/model"
)

type documentStore struct {
	client     *mongo.Client
	db         *mongo.Database
	collection string
}

// Connect establishes the MongoDB connection and returns a DocumentStore.
func Connect(ctx context.Context, cfg config.Config) (storage.DocumentStore, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetTimeout(cfg.OperationTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", model.WrapStoreError(err))
	}

	return NewDocumentStore(client, client.Database(cfg.Database), cfg.Collection), nil
}

// NewDocumentStore wraps an existing client, mainly for tests.
func NewDocumentStore(client *mongo.Client, db *mongo.Database, collection string) storage.DocumentStore {
	return &documentStore{client: client, db: db, collection: collection}
}

func (s *documentStore) coll() *mongo.Collection {
	return s.db.Collection(s.collection)
}

func (s *documentStore) Upsert(ctx context.Context, doc *model.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	id := model.DocumentID(doc.Source, doc.ExternalID)
	now := time.Now().UnixMilli()
	createdAt := doc.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}
	attrs := doc.Attrs
	if attrs == nil {
		attrs = map[string]interface{}{}
	}

	update := bson.M{
		"$set": bson.M{
			"source":      doc.Source,
			"external_id": doc.ExternalID,
			"category":    doc.Category,
			"title":       doc.Title,
			"body":        doc.Body,
			"score":       doc.Score,
			"attrs":       attrs,
			"updated_at":  now,
		},
		"$setOnInsert": bson.M{
			"created_at": createdAt,
		},
	}

	_, err := s.coll().UpdateOne(ctx, bson.M{"_id": id}, update, options.Update().SetUpsert(true))
	return model.WrapStoreError(err)
}

func (s *documentStore) Get(ctx context.Context, source, externalID string) (*model.Document, error) {
	var doc model.Document
	err := s.coll().FindOne(ctx, bson.M{"_id": model.DocumentID(source, externalID)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrNotFound
		}
		return nil, model.WrapStoreError(err)
	}
	return &doc, nil
}

func (s *documentStore) Search(ctx context.Context, plan storage.Plan) ([]*model.Document, error) {
	match, err := buildMatch(plan)
	if err != nil {
		return nil, err
	}

	findOpts := options.Find().
		SetSort(buildSort(plan)).
		SetSkip(int64(plan.Offset))
	if plan.Limit > 0 {
		findOpts.SetLimit(int64(plan.Limit))
	}
	if proj := buildProjection(plan); proj != nil {
		findOpts.SetProjection(proj)
	}

	cursor, err := s.coll().Find(ctx, match, findOpts)
	if err != nil {
		return nil, model.WrapStoreError(err)
	}
	defer cursor.Close(ctx)

	docs := make([]*model.Document, 0)
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, model.WrapStoreError(err)
	}
	return docs, nil
}

func (s *documentStore) Count(ctx context.Context, plan storage.Plan) (int64, error) {
	match, err := buildMatch(plan)
	if err != nil {
		return 0, err
	}
	total, err := s.coll().CountDocuments(ctx, match)
	if err != nil {
		return 0, model.WrapStoreError(err)
	}
	return total, nil
}

func (s *documentStore) Facet(ctx context.Context, plan storage.Plan, field string, maxBuckets int, unwind bool) (*model.FacetResult, error) {
	match, err := buildMatch(plan)
	if err != nil {
		return nil, err
	}
	path := mapField(field)
	match[path] = bson.M{"$exists": true}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: match}},
	}
	if unwind {
		pipeline = append(pipeline, bson.D{{Key: "$unwind", Value: "$" + path}})
	}
	pipeline = append(pipeline,
		bson.D{{Key: "$group", Value: bson.M{"_id": "$" + path, "count": bson.M{"$sum": 1}}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		bson.D{{Key: "$facet", Value: bson.M{
			"top":   bson.A{bson.M{"$limit": maxBuckets}},
			"total": bson.A{bson.M{"$group": bson.M{"_id": nil, "sum": bson.M{"$sum": "$count"}}}},
		}}},
	)

	cursor, err := s.coll().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, model.WrapStoreError(err)
	}
	defer cursor.Close(ctx)

	var agg []struct {
		Top []struct {
			Value interface{} `bson:"_id"`
			Count int64       `bson:"count"`
		} `bson:"top"`
		Total []struct {
			Sum int64 `bson:"sum"`
		} `bson:"total"`
	}
	if err := cursor.All(ctx, &agg); err != nil {
		return nil, model.WrapStoreError(err)
	}

	result := &model.FacetResult{Field: field, Buckets: []model.FacetBucket{}}
	if len(agg) == 0 {
		return result, nil
	}

	var bucketSum int64
	for _, b := range agg[0].Top {
		result.Buckets = append(result.Buckets, model.FacetBucket{Value: b.Value, Count: b.Count})
		bucketSum += b.Count
	}
	if len(agg[0].Total) > 0 && agg[0].Total[0].Sum > bucketSum {
		result.Other = agg[0].Total[0].Sum - bucketSum
	}
	return result, nil
}

func (s *documentStore) Sample(ctx context.Context, source string, n int) ([]*model.Document, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"source": source}}},
		bson.D{{Key: "$sample", Value: bson.M{"size": n}}},
	}

	cursor, err := s.coll().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, model.WrapStoreError(err)
	}
	defer cursor.Close(ctx)

	docs := make([]*model.Document, 0, n)
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, model.WrapStoreError(err)
	}
	return docs, nil
}

func (s *documentStore) Sources(ctx context.Context) ([]string, error) {
	raw, err := s.coll().Distinct(ctx, "source", bson.M{})
	if err != nil {
		return nil, model.WrapStoreError(err)
	}
	sources := make([]string, 0, len(raw))
	for _, v := range raw {
		if str, ok := v.(string); ok {
			sources = append(sources, str)
		}
	}
	return sources, nil
}

func (s *documentStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "source", Value: 1}, {Key: "external_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "category", Value: 1}, {Key: "updated_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "title", Value: "text"}, {Key: "body", Value: "text"}},
			// Title matches rank above body-only matches.
			Options: options.Index().SetWeights(bson.M{"title": 10, "body": 1}),
		},
	}
	_, err := s.coll().Indexes().CreateMany(ctx, indexes)
	return model.WrapStoreError(err)
}

func (s *documentStore) Close(ctx context.Context) error {
	if s.client != nil {
		return s.client.Disconnect(ctx)
	}
	return nil
}
