package mongo

import (
	"time"
)

// Message MongoDB 消息明细模型
type Message struct {
	ID             string     `bson:"_id,omitempty" json:"id"`               // MongoDB 自动生成的 ObjectID
	ConversationID uint64     `bson:"conversation_id" json:"conversationId"` // 关联 MySQL 的会话 ID
	SenderID       uint64     `bson:"sender_id" json:"senderId"`             // 发送者 UID
	RecipientID    uint64     `bson:"recipient_id" json:"recipientId"`       // 接收者 UID（会话另一方）
	MsgType        int        `bson:"msg_type" json:"msgType"`               // 1-文本
	Content        string     `bson:"content" json:"content"`                // 文本内容
	Seq            uint64     `bson:"seq" json:"seq"`                        // 该消息在会话中的唯一绝对序号 (来自 MySQL)
	Delivered      bool       `bson:"delivered" json:"delivered"`            // 已投递到在线连接，不代表已读
	Viewed         bool       `bson:"viewed" json:"viewed"`                  // 接收方已打开展示
	ReadAt         *time.Time `bson:"read_at,omitempty" json:"readAt"`       // Viewed 为 true 时必有值
	CreatedAt      time.Time  `bson:"created_at" json:"createdAt"`           // 落库时间，历史排序的权威依据
}
