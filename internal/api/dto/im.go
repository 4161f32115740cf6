package dto

import "time"

// SendMessageReq 发送消息请求体
type SendMessageReq struct {
	ConversationID uint64 `json:"conversation_id"`
	RecipientID    uint64 `json:"recipient_id" binding:"required"`
	Content        string `json:"content" binding:"required"`
}

// MessageDTO 消息明细响应
type MessageDTO struct {
	ID             string     `json:"id,omitempty"`
	ConversationID uint64     `json:"conversation_id"`
	SenderID       uint64     `json:"sender_id"`
	RecipientID    uint64     `json:"recipient_id"`
	Content        string     `json:"content"`
	Seq            uint64     `json:"seq"`
	Delivered      bool       `json:"delivered"`
	Viewed         bool       `json:"viewed"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// ConversationDTO 会话列表项响应
type ConversationDTO struct {
	ConversationID uint64    `json:"conversation_id"`
	PeerID         uint64    `json:"peer_id"` // 对手方ID
	PeerNickname   string    `json:"peer_nickname"`
	PeerAvatarURL  string    `json:"peer_avatar_url"`
	LastMsgContent string    `json:"last_msg_content"`
	LastSenderID   uint64    `json:"last_sender_id"`
	LastMessageAt  time.Time `json:"lastMessageAt"`
}

// CreateConversationReq 获取或创建会话请求
type CreateConversationReq struct {
	TargetUserID uint64 `json:"target_user_id" binding:"required"`
}

// MarkViewedReq 标记已读请求
type MarkViewedReq struct {
	MessageID string `json:"message_id" binding:"required"`
}
