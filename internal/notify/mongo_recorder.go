package notify

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRecorder stores failed deliveries in a collection as pending documents.
type MongoRecorder struct {
	coll *mongo.Collection
}

func NewMongoRecorder(coll *mongo.Collection) *MongoRecorder {
	return &MongoRecorder{coll: coll}
}

// Connect opens a client and pings it. The caller owns Disconnect.
func Connect(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

func failureDocument(f Failure) bson.M {
	errText := ""
	if f.Err != nil {
		errText = f.Err.Error()
	}
	return bson.M{
		"target": f.Target,
		"payload": bson.M{
			"email":     f.Email,
			"cycleName": f.CycleName,
		},
		"error":       errText,
		"attempts":    f.Attempts,
		"status":      "pending",
		"createdAt":   f.At,
		"lastTriedAt": f.At,
	}
}

func (r *MongoRecorder) RecordFailure(ctx context.Context, f Failure) error {
	if r == nil || r.coll == nil {
		return nil
	}
	if _, err := r.coll.InsertOne(ctx, failureDocument(f)); err != nil {
		return fmt.Errorf("failed_notifications insert: %w", err)
	}
	return nil
}
