package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"livepoll-backend/internal/models"
)

const mongoSessionsCollection = "sessions"

// MongoSessionRepo stores one document per session, keyed by session id.
type MongoSessionRepo struct {
	coll *mongo.Collection
}

func NewMongoSessionRepo(db *mongo.Database) *MongoSessionRepo {
	return &MongoSessionRepo{coll: db.Collection(mongoSessionsCollection)}
}

func (r *MongoSessionRepo) Get(ctx context.Context, id string) (*models.Session, error) {
	s := &models.Session{}
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Save inserts a new session, or replaces the stored document only while it
// is still at expectedVersion.
func (r *MongoSessionRepo) Save(ctx context.Context, s *models.Session, expectedVersion int64) error {
	if expectedVersion == 0 {
		_, err := r.coll.InsertOne(ctx, s)
		if mongo.IsDuplicateKeyError(err) {
			return ErrVersionConflict
		}
		return err
	}

	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": s.ID, "version": expectedVersion}, s)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *MongoSessionRepo) ListWithActivePoll(ctx context.Context) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.M{"_id": 1})
	cur, err := r.coll.Find(ctx, bson.M{"activePollId": bson.M{"$ne": nil}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	return ids, cur.Err()
}
