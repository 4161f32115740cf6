package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessageRepo interface {
	SaveMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, msgID string) (*Message, error)
	GetHistory(ctx context.Context, convID uint64, afterSeq uint64, limit int) ([]*Message, error)
	GetLatest(ctx context.Context, convID uint64) (*Message, error)
	MarkDelivered(ctx context.Context, msgID string) error
	MarkViewed(ctx context.Context, msgID string, readAt time.Time) error
}

type messageRepoImpl struct {
	col *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) MessageRepo {
	return &messageRepoImpl{
		col: db.Collection("message"),
	}
}

// SaveMessage 将消息存入 MongoDB，回填生成的 ObjectID
func (s *messageRepoImpl) SaveMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = primitive.NewObjectID().Hex()
	}
	_, err := s.col.InsertOne(ctx, msg)
	return err
}

// GetMessage 按 ID 精确查询
func (s *messageRepoImpl) GetMessage(ctx context.Context, msgID string) (*Message, error) {
	var msg Message
	err := s.col.FindOne(ctx, bson.M{"_id": msgID}).Decode(&msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetHistory 历史消息查询逻辑
// afterSeq 为客户端已持有的最大序号，首次加载传 0。结果按 seq 升序。
func (s *messageRepoImpl) GetHistory(ctx context.Context, convID uint64, afterSeq uint64, limit int) ([]*Message, error) {
	filter := bson.M{"conversation_id": convID}

	// 游标过滤：增量同步时只取比已有序号更新的消息
	if afterSeq > 0 {
		filter["seq"] = bson.M{"$gt": afterSeq}
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "seq", Value: 1}})
	if limit > 0 {
		findOptions = findOptions.SetLimit(int64(limit))
	}

	cursor, err := s.col.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var messages []*Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	return messages, nil
}

// GetLatest 取会话最新一条消息，用于预览校准
func (s *messageRepoImpl) GetLatest(ctx context.Context, convID uint64) (*Message, error) {
	var msg Message
	findOptions := options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})
	err := s.col.FindOne(ctx, bson.M{"conversation_id": convID}, findOptions).Decode(&msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkDelivered 投递标记只会从 false 变为 true
func (s *messageRepoImpl) MarkDelivered(ctx context.Context, msgID string) error {
	_, err := s.col.UpdateOne(ctx,
		bson.M{"_id": msgID, "delivered": false},
		bson.M{"$set": bson.M{"delivered": true}},
	)
	return err
}

// MarkViewed 已读标记，幂等：已读消息再次标记不产生任何写入
// 已读蕴含已投递，一并置位
func (s *messageRepoImpl) MarkViewed(ctx context.Context, msgID string, readAt time.Time) error {
	_, err := s.col.UpdateOne(ctx,
		bson.M{"_id": msgID, "viewed": false},
		bson.M{"$set": bson.M{"viewed": true, "delivered": true, "read_at": readAt}},
	)
	return err
}
