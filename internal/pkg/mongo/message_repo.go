package mongo

import (
	"Sproutline/internal/model"
	"Sproutline/internal/repository"
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type messageRepoImpl struct {
	col *mongo.Collection
}

// NewMessageRepo MongoDB 消息日志实现
func NewMessageRepo(db *mongo.Database) repository.MessageRepo {
	return &messageRepoImpl{
		col: db.Collection("message"),
	}
}

func (s *messageRepoImpl) Append(ctx context.Context, msg *model.Message) error {
	_, err := s.col.InsertOne(ctx, msg)
	return err
}

// List 全量拉取，时间戳升序；同时间戳按 seq 稳定排序
func (s *messageRepoImpl) List(ctx context.Context, convID string) ([]*model.Message, error) {
	filter := bson.M{"conversation_id": convID}
	findOptions := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "seq", Value: 1}})

	cursor, err := s.col.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	messages := make([]*model.Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *messageRepoImpl) CountUnread(ctx context.Context, convID string, viewerID string) (int64, error) {
	filter := bson.M{
		"conversation_id": convID,
		"sender_id":       bson.M{"$ne": viewerID},
		"read":            false,
	}
	return s.col.CountDocuments(ctx, filter)
}

// MarkAllRead 一条 UpdateMany 批量置读，订阅方不会看到置读到一半的中间态
func (s *messageRepoImpl) MarkAllRead(ctx context.Context, convID string, viewerID string) (int64, error) {
	filter := bson.M{
		"conversation_id": convID,
		"sender_id":       bson.M{"$ne": viewerID},
		"read":            false,
	}
	res, err := s.col.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *messageRepoImpl) PurgeConversation(ctx context.Context, convID string) error {
	_, err := s.col.DeleteMany(ctx, bson.M{"conversation_id": convID})
	return err
}

func (s *messageRepoImpl) ConversationIDs(ctx context.Context) ([]string, error) {
	raw, err := s.col.Distinct(ctx, "conversation_id", bson.M{})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
