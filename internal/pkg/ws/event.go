package ws

import (
	"Ripple/internal/pkg/util"

	"github.com/goccy/go-json"
)

// 入站事件类型，闭集：不在此列的事件一律丢弃
const (
	EventRegister     = "register"
	EventSendMessage  = "send_message"
	EventMarkViewed   = "mark_viewed"
	EventCallUser     = "call-user"
	EventAnswerCall   = "answer-call"
	EventIceCandidate = "ice-candidate"
)

// 出站事件类型
const (
	EventMessageSent     = "message_sent" // 发送方回执，携带落库后的完整消息
	EventReceiveMessage  = "receive_message"
	EventDelivered       = "delivered"
	EventReadReceipt     = "read_receipt"
	EventIncomingCall    = "incoming-call"
	EventCallAnswered    = "call-answered"
	EventCallUnreachable = "call-unreachable"
	EventError           = "error"
)

// Envelope 入站事件信封
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// OutboundFrame 出站事件信封
type OutboundFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// RegisterPayload 注册事件：声明本连接代表的用户
type RegisterPayload struct {
	UserID uint64 `json:"user_id" validate:"required"`
}

// SendMessagePayload 发送消息事件
type SendMessagePayload struct {
	ConversationID uint64 `json:"conversation_id"`
	RecipientID    uint64 `json:"recipient_id" validate:"required"`
	Content        string `json:"content" validate:"required"`
}

// MarkViewedPayload 标记已读事件，读者取连接注册身份
type MarkViewedPayload struct {
	MessageID string `json:"message_id" validate:"required"`
}

// SignalPayload 呼叫信令事件，SDP/ICE 内容不做解析原样转发
type SignalPayload struct {
	To        uint64          `json:"to" validate:"required"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// IncomingCallPayload 被叫侧收到的呼叫通知
type IncomingCallPayload struct {
	From  uint64          `json:"from"`
	Offer json.RawMessage `json:"offer"`
}

// CallAnsweredPayload 主叫侧收到的应答
type CallAnsweredPayload struct {
	From   uint64          `json:"from"`
	Answer json.RawMessage `json:"answer"`
}

// CandidatePayload 转发的 ICE 候选
type CandidatePayload struct {
	From      uint64          `json:"from"`
	Candidate json.RawMessage `json:"candidate"`
}

// UnreachablePayload 被叫不在线的同步回告
type UnreachablePayload struct {
	To uint64 `json:"to"`
}

// DeliveredPayload 投递回执
type DeliveredPayload struct {
	MessageID string `json:"message_id"`
}

// ReadReceiptPayload 已读回执
type ReadReceiptPayload struct {
	MessageID      string `json:"message_id"`
	ConversationID uint64 `json:"conversation_id"`
	ReaderID       uint64 `json:"reader_id"`
	ReadAt         string `json:"read_at"`
}

// ErrorPayload 结构化错误回告，永不以断连代替
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// DecodePayload 解析并校验入站事件负载
func DecodePayload(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}
	return util.ValidateDTO(v)
}
