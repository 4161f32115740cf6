package consts

const (
	// ConversationTypeSingle 单聊会话（当前唯一支持的类型）
	ConversationTypeSingle = 1
)

const (
	MsgTypeText = 1
)

const (
	DefaultMaxContentLen   = 4000
	DefaultHistoryPageSize = 50
	DefaultSendBufferSize  = 64
)
