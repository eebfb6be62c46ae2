package verifylog

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// CollectionName is the MongoDB collection holding verification logs.
const CollectionName = "verification_logs"

// MongoStore persists entries in a MongoDB collection.
type MongoStore struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewMongoStore creates a MongoStore on db and ensures its indexes.
func NewMongoStore(ctx context.Context, db *mongo.Database, logger *zap.Logger) (*MongoStore, error) {
	s := &MongoStore{coll: db.Collection(CollectionName), logger: logger}
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "timestamp", Value: -1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("create verification log indexes: %w", err)
	}
	return s, nil
}

// Append implements Store.
func (s *MongoStore) Append(ctx context.Context, e *Entry) error {
	if _, err := s.coll.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("insert verification log: %w", err)
	}
	s.logger.Debug("verification logged",
		zap.String("cert_id", e.CertificateID),
		zap.String("status", string(e.Status)),
	)
	return nil
}

// Recent implements Store.
func (s *MongoStore) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	return s.find(ctx, bson.M{}, clampLimit(limit))
}

// ForgeryAlerts implements Store.
func (s *MongoStore) ForgeryAlerts(ctx context.Context, limit int) ([]*Entry, error) {
	return s.find(ctx, bson.M{"status": StatusInvalid}, clampLimit(limit))
}

func (s *MongoStore) find(ctx context.Context, filter bson.M, limit int) ([]*Entry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find verification logs: %w", err)
	}
	out := make([]*Entry, 0, limit)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode verification logs: %w", err)
	}
	return out, nil
}

type statusBucket struct {
	Status Status `bson:"_id"`
	Count  int    `bson:"count"`
}

type dayBucket struct {
	Key struct {
		Day    string `bson:"day"`
		Status Status `bson:"status"`
	} `bson:"_id"`
	Count int `bson:"count"`
}

// Stats implements Store.
func (s *MongoStore) Stats(ctx context.Context, days int) (*Stats, error) {
	now := time.Now()
	st, byDay := newStats(now, days)

	totals := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	var buckets []statusBucket
	if err := s.aggregate(ctx, totals, &buckets); err != nil {
		return nil, err
	}
	for _, b := range buckets {
		st.add(b.Status, b.Count)
	}

	if days <= 0 {
		return st, nil
	}
	daily := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "timestamp", Value: bson.D{{Key: "$gte", Value: windowStart(now, days)}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "day", Value: bson.D{{Key: "$dateToString", Value: bson.D{
					{Key: "format", Value: "%Y-%m-%d"},
					{Key: "date", Value: "$timestamp"},
				}}}},
				{Key: "status", Value: "$status"},
			}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	var dayBuckets []dayBucket
	if err := s.aggregate(ctx, daily, &dayBuckets); err != nil {
		return nil, err
	}
	for _, b := range dayBuckets {
		if d, ok := byDay[b.Key.Day]; ok {
			d.add(b.Key.Status, b.Count)
		}
	}
	return st, nil
}

func (s *MongoStore) aggregate(ctx context.Context, p mongo.Pipeline, out any) error {
	cur, err := s.coll.Aggregate(ctx, p)
	if err != nil {
		return fmt.Errorf("aggregate verification logs: %w", err)
	}
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("decode aggregate: %w", err)
	}
	return nil
}

// Connect opens a MongoDB client and pings it.
func Connect(ctx context.Context, uri string, logger *zap.Logger) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	logger.Info("connected to mongo")
	return client, nil
}
