package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Compile-time check that MongoBackend implements Backend.
var _ Backend = (*MongoBackend)(nil)

// MongoBackend keeps each collection blob as a single document keyed by the
// collection name.
type MongoBackend struct {
	client *mongo.Client
	blobs  *mongo.Collection
}

type blobDocument struct {
	Name      string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	Version   int64     `bson:"version"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// OpenMongo connects to uri and uses the "collections" collection of database.
func OpenMongo(ctx context.Context, uri, database string) (*MongoBackend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	return &MongoBackend{
		client: client,
		blobs:  client.Database(database).Collection("collections"),
	}, nil
}

func (m *MongoBackend) Get(ctx context.Context, collection string) (Blob, error) {
	var doc blobDocument
	err := m.blobs.FindOne(ctx, bson.D{{Key: "_id", Value: collection}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Blob{}, nil
	}
	if err != nil {
		return Blob{}, fmt.Errorf("reading collection %s: %w", collection, err)
	}
	return Blob{Data: doc.Data, Version: doc.Version}, nil
}

func (m *MongoBackend) Put(ctx context.Context, collection string, data []byte, expect int64) (int64, error) {
	next := expect + 1
	now := time.Now().UTC()

	if expect == 0 {
		_, err := m.blobs.InsertOne(ctx, blobDocument{Name: collection, Data: data, Version: next, UpdatedAt: now})
		if mongo.IsDuplicateKeyError(err) {
			return 0, fmt.Errorf("%s already exists: %w", collection, ErrConflict)
		}
		if err != nil {
			return 0, fmt.Errorf("writing collection %s: %w", collection, err)
		}
		return next, nil
	}

	res, err := m.blobs.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: collection}, {Key: "version", Value: expect}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "data", Value: data},
			{Key: "version", Value: next},
			{Key: "updated_at", Value: now},
		}}},
	)
	if err != nil {
		return 0, fmt.Errorf("writing collection %s: %w", collection, err)
	}
	if res.MatchedCount == 0 {
		return 0, fmt.Errorf("%s moved past version %d: %w", collection, expect, ErrConflict)
	}
	return next, nil
}

func (m *MongoBackend) Delete(ctx context.Context, collection string) error {
	_, err := m.blobs.DeleteOne(ctx, bson.D{{Key: "_id", Value: collection}})
	return err
}

func (m *MongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
