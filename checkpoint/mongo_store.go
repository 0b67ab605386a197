package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// mongoDoc 检查点在 MongoDB 中的文档形态
type mongoDoc struct {
	ID        string    `bson:"_id"`
	ThreadID  string    `bson:"thread_id"`
	Data      []byte    `bson:"data"`
	CreatedAt time.Time `bson:"created_at"`
}

// MongoStore MongoDB 检查点存储
// 以检查点 ID 为 _id，相同 ID 的写入为整文档替换
type MongoStore struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewMongoStore 创建 MongoDB 检查点存储
func NewMongoStore(coll *mongo.Collection, logger *zap.Logger) *MongoStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoStore{
		coll:   coll,
		logger: logger.With(zap.String("store", "mongo_checkpoint")),
	}
}

func (s *MongoStore) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	doc := mongoDoc{
		ID:        cp.ID,
		ThreadID:  cp.ThreadID,
		Data:      data,
		CreatedAt: cp.CreatedAt,
	}
	_, err = s.coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: cp.ID}},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *MongoStore) Load(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	var doc mongoDoc
	err := s.coll.FindOne(ctx, bson.D{
		{Key: "_id", Value: checkpointID},
		{Key: "thread_id", Value: threadID},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return decodeMongoDoc(&doc)
}

func (s *MongoStore) LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	var doc mongoDoc
	err := s.coll.FindOne(ctx,
		bson.D{{Key: "thread_id", Value: threadID}},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load latest checkpoint: %w", err)
	}
	return decodeMongoDoc(&doc)
}

func (s *MongoStore) List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cursor, err := s.coll.Find(ctx, bson.D{{Key: "thread_id", Value: threadID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*Checkpoint
	for cursor.Next(ctx) {
		var doc mongoDoc
		if err := cursor.Decode(&doc); err != nil {
			s.logger.Warn("skipping undecodable checkpoint", zap.Error(err))
			continue
		}
		cp, err := decodeMongoDoc(&doc)
		if err != nil {
			s.logger.Warn("skipping undecodable checkpoint",
				zap.String("checkpoint_id", doc.ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, cp)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return out, nil
}

func (s *MongoStore) Delete(ctx context.Context, threadID, checkpointID string) error {
	res, err := s.coll.DeleteOne(ctx, bson.D{
		{Key: "_id", Value: checkpointID},
		{Key: "thread_id", Value: threadID},
	})
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.coll.DeleteMany(ctx, bson.D{
		{Key: "created_at", Value: bson.D{{Key: "$lt", Value: cutoff}}},
	})
	if err != nil {
		return 0, fmt.Errorf("delete old checkpoints: %w", err)
	}
	return int(res.DeletedCount), nil
}

func decodeMongoDoc(doc *mongoDoc) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(doc.Data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint %s: %w", doc.ID, err)
	}
	return &cp, nil
}
