package repo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/domain"
)

const errorLogCollection = "error_logs"

type MongoErrorLogRepo struct{ coll *mongo.Collection }

func NewMongoErrorLogRepo(db *mongo.Database) *MongoErrorLogRepo {
	return &MongoErrorLogRepo{coll: db.Collection(errorLogCollection)}
}

// EnsureIndexes 按时间倒序查询最近的错误
func (r *MongoErrorLogRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "severity", Value: 1}}},
	})
	return err
}

func (r *MongoErrorLogRepo) Insert(ctx context.Context, e *domain.ErrorLog) error {
	_, err := r.coll.InsertOne(ctx, e)
	return err
}

func (r *MongoErrorLogRepo) FindByID(ctx context.Context, id string) (*domain.ErrorLog, error) {
	var e domain.ErrorLog
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *MongoErrorLogRepo) Recent(ctx context.Context, limit int) ([]domain.ErrorLog, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(clampLimit(limit, 50, 500)))
	cur, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var out []domain.ErrorLog
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
