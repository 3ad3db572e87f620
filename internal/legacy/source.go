package legacy

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Source streams legacy documents. Iteration stops at the first error fn returns.
type Source interface {
	EachUser(ctx context.Context, fn func(*UserDoc) error) error
	EachJobPosting(ctx context.Context, fn func(*JobPostingDoc) error) error
	EachPayment(ctx context.Context, fn func(*PaymentDoc) error) error
}

// MongoSource reads the users, jobpostings and payments collections.
type MongoSource struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens the legacy database and verifies the connection.
func Connect(ctx context.Context, uri, database string) (*MongoSource, error) {
	if uri == "" {
		return nil, fmt.Errorf("MONGODB_URI is not set")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &MongoSource{client: client, db: client.Database(database)}, nil
}

// Close disconnects the client.
func (s *MongoSource) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoSource) EachUser(ctx context.Context, fn func(*UserDoc) error) error {
	return each(ctx, s.db.Collection("users"), fn)
}

func (s *MongoSource) EachJobPosting(ctx context.Context, fn func(*JobPostingDoc) error) error {
	return each(ctx, s.db.Collection("jobpostings"), fn)
}

func (s *MongoSource) EachPayment(ctx context.Context, fn func(*PaymentDoc) error) error {
	return each(ctx, s.db.Collection("payments"), fn)
}

// each walks a collection in _id order.
func each[T any](ctx context.Context, coll *mongo.Collection, fn func(*T) error) error {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetBatchSize(500)
	cur, err := coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return fmt.Errorf("find %s: %w", coll.Name(), err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc T
		if err := cur.Decode(&doc); err != nil {
			return fmt.Errorf("decode %s document: %w", coll.Name(), err)
		}
		if err := fn(&doc); err != nil {
			return err
		}
	}
	return cur.Err()
}
