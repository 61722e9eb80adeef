package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/habitkit/habitkit/pkg/datasync"
)

// MongoStore keeps one document per user, replaced wholesale on every
// upload. The document _id is the user ID string, so upserts are naturally
// idempotent.
type MongoStore struct {
	coll *mongo.Collection
}

type aggregateDoc struct {
	UserID    string             `bson:"_id"`
	Data      datasync.Aggregate `bson:"data"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

// NewMongoStore creates a Mongo-backed cloud store over the given collection.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	if coll == nil {
		panic("datastore: mongo collection is required")
	}
	return &MongoStore{coll: coll}
}

func (s *MongoStore) Upload(ctx context.Context, userID uuid.UUID, agg datasync.Aggregate) error {
	doc := aggregateDoc{
		UserID:    userID.String(),
		Data:      agg,
		UpdatedAt: time.Now().UTC(),
	}

	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": userID.String()},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return nil
}

func (s *MongoStore) Download(ctx context.Context, userID uuid.UUID) (datasync.Aggregate, bool, error) {
	var doc aggregateDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": userID.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return datasync.Aggregate{}, false, nil
		}
		return datasync.Aggregate{}, false, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return doc.Data, true, nil
}
