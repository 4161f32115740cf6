package service

import (
	"Ripple/internal/api/config"
	"Ripple/internal/api/dto"
	"Ripple/internal/model"
	"Ripple/internal/pkg/consts"
	"Ripple/internal/pkg/kafka"
	"Ripple/internal/pkg/mongo"
	"Ripple/internal/pkg/notify"
	"Ripple/internal/pkg/ws"
	"Ripple/internal/repository"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jinzhu/copier"
	mongoDB "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// IMService 即时通讯服务接口定义
type IMService interface {
	// SendMessage 实时链路：落库后尝试即时投递
	SendMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error)
	// PersistMessage REST 兜底链路：只落库，不做在线投递
	PersistMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error)
	GetOrCreateConversation(ctx context.Context, userID, targetUserID uint64) (*dto.ConversationDTO, error)
	GetChatHistory(ctx context.Context, userID uint64, convID uint64, afterSeq uint64, limit int) ([]*dto.MessageDTO, error)
	GetConversationList(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error)
	MarkViewed(ctx context.Context, viewerID uint64, messageID string) error
}

type imServiceImpl struct {
	convRepo    repository.ConversationRepo
	messageRepo mongo.MessageRepo
	userRepo    repository.UserRepo
	registry    *ws.Registry
	producer    kafka.EventProducer
	pusher      notify.Pusher

	maxContentLen int
	pageSize      int
}

// NewIMService 构造函数
func NewIMService(
	cfg config.IMConfig,
	convRepo repository.ConversationRepo,
	messageRepo mongo.MessageRepo,
	userRepo repository.UserRepo,
	registry *ws.Registry,
	producer kafka.EventProducer,
	pusher notify.Pusher,
) IMService {
	maxLen := cfg.MaxContentLen
	if maxLen <= 0 {
		maxLen = consts.DefaultMaxContentLen
	}
	pageSize := cfg.HistoryPageSize
	if pageSize <= 0 {
		pageSize = consts.DefaultHistoryPageSize
	}

	return &imServiceImpl{
		convRepo:      convRepo,
		messageRepo:   messageRepo,
		userRepo:      userRepo,
		registry:      registry,
		producer:      producer,
		pusher:        pusher,
		maxContentLen: maxLen,
		pageSize:      pageSize,
	}
}

// SendMessage 发送消息：校验、落库、在线即投、离线事件
func (s *imServiceImpl) SendMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error) {
	msg, err := s.persist(ctx, senderID, req)
	if err != nil {
		return nil, err
	}

	delivered := s.deliver(ctx, msg)

	s.publishCreated(msg)

	if !delivered {
		s.pusher.PushOffline(ctx, msg.RecipientID, msg.Content)
	}

	return s.toMessageDTO(msg), nil
}

// PersistMessage 非实时客户端的兜底发送，不查在线表
func (s *imServiceImpl) PersistMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error) {
	msg, err := s.persist(ctx, senderID, req)
	if err != nil {
		return nil, err
	}

	s.publishCreated(msg)
	s.pusher.PushOffline(ctx, msg.RecipientID, msg.Content)

	return s.toMessageDTO(msg), nil
}

// persist 发送公共部分：校验消息、定位会话、定序、写入明细库
func (s *imServiceImpl) persist(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*mongo.Message, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, ErrContentEmpty
	}
	if len(content) > s.maxContentLen {
		return nil, ErrContentTooLong
	}
	if req.RecipientID == 0 || req.RecipientID == senderID {
		return nil, ErrTargetUserInvalid
	}

	// 会话 ID 只是路由提示：不存在或成员对不是 {发送方, 接收方} 时
	// 回退到按无序对取建，过期提示不能让本可送达的消息发不出去
	convID := req.ConversationID
	if convID != 0 {
		conv, err := s.convRepo.GetConversation(ctx, convID)
		switch {
		case err == nil && conv.PeerKey == peerKey(senderID, req.RecipientID):
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			log.ErrorContext(ctx, "查询会话失败", "convID", convID, "err", err)
			return nil, ErrPersistFailed
		default:
			log.WarnContext(ctx, "会话提示与收发双方不符，按无序对回退", "convID", convID, "senderID", senderID, "recipientID", req.RecipientID)
			convID = 0
		}
	}
	if convID == 0 {
		id, err := s.getOrCreateConversationID(ctx, senderID, req.RecipientID)
		if err != nil {
			return nil, err
		}
		convID = id
	}

	// MySQL 原子定序，同一事务刷新预览
	newSeq, err := s.convRepo.IncrMaxSeq(ctx, convID, content, senderID)
	if err != nil {
		log.ErrorContext(ctx, "会话定序失败", "convID", convID, "err", err)
		return nil, ErrPersistFailed
	}

	msg := &mongo.Message{
		ConversationID: convID,
		SenderID:       senderID,
		RecipientID:    req.RecipientID,
		MsgType:        consts.MsgTypeText,
		Content:        content,
		Seq:            newSeq,
		Delivered:      false,
		Viewed:         false,
		CreatedAt:      time.Now(),
	}

	writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	// 写入失败必须显式回告发送方，客户端据此重试，绝不静默丢弃
	if err := s.messageRepo.SaveMessage(writeCtx, msg); err != nil {
		log.ErrorContext(ctx, "消息写入失败", "convID", convID, "seq", newSeq, "err", err)
		return nil, ErrPersistFailed
	}

	return msg, nil
}

// deliver 查在线表即时投递，成功后置投递标记并回执发送方
func (s *imServiceImpl) deliver(ctx context.Context, msg *mongo.Message) bool {
	peer, ok := s.registry.Lookup(msg.RecipientID)
	if !ok {
		return false
	}

	if err := peer.Send(ws.EventReceiveMessage, s.toMessageDTO(msg)); err != nil {
		log.WarnContext(ctx, "即时投递失败，留待历史拉取", "msgID", msg.ID, "recipientID", msg.RecipientID, "err", err)
		return false
	}

	// 投递标记落库失败不回滚投递本身，标记会随已读一并补上
	if err := s.messageRepo.MarkDelivered(ctx, msg.ID); err != nil {
		log.WarnContext(ctx, "投递标记落库失败", "msgID", msg.ID, "err", err)
	} else {
		msg.Delivered = true
	}

	if sender, ok := s.registry.Lookup(msg.SenderID); ok {
		_ = sender.Send(ws.EventDelivered, &ws.DeliveredPayload{MessageID: msg.ID})
	}

	return true
}

// publishCreated 向事件总线发布新消息事件，通知等下游消费
func (s *imServiceImpl) publishCreated(msg *mongo.Message) {
	s.producer.PublishMessageCreated(&kafka.MessageCreatedEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		RecipientID:    msg.RecipientID,
		Delivered:      msg.Delivered,
		CreatedAt:      msg.CreatedAt,
	})
}

// GetOrCreateConversation 针对单聊：获取或创建会话
func (s *imServiceImpl) GetOrCreateConversation(ctx context.Context, userID, targetUserID uint64) (*dto.ConversationDTO, error) {
	if targetUserID == 0 || targetUserID == userID {
		return nil, ErrTargetUserInvalid
	}

	target, err := s.userRepo.GetUserById(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTargetUserInvalid
		}
		return nil, err
	}

	convID, err := s.getOrCreateConversationID(ctx, userID, targetUserID)
	if err != nil {
		return nil, err
	}

	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}

	d := &dto.ConversationDTO{}
	_ = copier.Copy(d, conv)
	d.ConversationID = conv.ID
	d.PeerID = targetUserID
	d.PeerNickname = target.Nickname
	d.PeerAvatarURL = target.AvatarURL
	return d, nil
}

// getOrCreateConversationID 无序对查找，不存在则建
// 并发同建时唯一索引兜底，冲突后重查一次收敛到同一会话
func (s *imServiceImpl) getOrCreateConversationID(ctx context.Context, userID, targetUserID uint64) (uint64, error) {
	key := peerKey(userID, targetUserID)

	conv, err := s.convRepo.GetConversationByPeerKey(ctx, key)
	if err == nil {
		return conv.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	newConv := &model.Conversation{
		Type:          consts.ConversationTypeSingle,
		PeerKey:       key,
		LastMessageAt: time.Now(),
	}
	members := []*model.ConversationMember{
		{UserID: userID},
		{UserID: targetUserID},
	}

	if err := s.convRepo.CreateConversation(ctx, newConv, members); err != nil {
		// 唯一索引兜底：对端同时发起时落到同一会话
		if isDuplicateError(err) {
			if conv, retryErr := s.convRepo.GetConversationByPeerKey(ctx, key); retryErr == nil {
				return conv.ID, nil
			}
		}
		return 0, err
	}
	return newConv.ID, nil
}

func isDuplicateError(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	return false
}

// GetChatHistory 拉取历史，seq 升序
func (s *imServiceImpl) GetChatHistory(ctx context.Context, userID uint64, convID uint64, afterSeq uint64, limit int) ([]*dto.MessageDTO, error) {
	isMember, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotParticipant
	}

	if limit <= 0 {
		limit = s.pageSize
	}

	models, err := s.messageRepo.GetHistory(ctx, convID, afterSeq, limit)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.MessageDTO, 0, len(models))
	for _, m := range models {
		res = append(res, s.toMessageDTO(m))
	}
	return res, nil
}

// GetConversationList 获取会话列表并补全对手方信息
func (s *imServiceImpl) GetConversationList(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error) {
	members, err := s.convRepo.GetUserConversationMemList(ctx, userID)
	if err != nil {
		return nil, err
	}

	peerIDs := make([]uint64, 0, len(members))
	for _, m := range members {
		if peerID, err := parsePeerID(m.Conversation.PeerKey, userID); err == nil {
			peerIDs = append(peerIDs, peerID)
		}
	}

	peers := make(map[uint64]*model.User, len(peerIDs))
	if len(peerIDs) > 0 {
		users, err := s.userRepo.GetUsersByIds(ctx, peerIDs)
		if err != nil {
			log.WarnContext(ctx, "对手方信息补全失败", "userID", userID, "err", err)
		}
		for _, u := range users {
			peers[u.ID] = u
		}
	}

	res := make([]*dto.ConversationDTO, 0, len(members))
	for _, m := range members {
		d := &dto.ConversationDTO{}
		_ = copier.Copy(d, &m.Conversation)
		d.ConversationID = m.ConversationID

		if peerID, err := parsePeerID(m.Conversation.PeerKey, userID); err == nil {
			d.PeerID = peerID
			if u, ok := peers[peerID]; ok {
				d.PeerNickname = u.Nickname
				d.PeerAvatarURL = u.AvatarURL
			}
		}
		res = append(res, d)
	}
	return res, nil
}

// MarkViewed 标记已读，幂等，只有接收方可操作
func (s *imServiceImpl) MarkViewed(ctx context.Context, viewerID uint64, messageID string) error {
	msg, err := s.messageRepo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, mongoDB.ErrNoDocuments) {
			return ErrMessageNotFound
		}
		return err
	}

	if msg.RecipientID != viewerID {
		return ErrNotRecipient
	}

	if msg.Viewed {
		return nil
	}

	readAt := time.Now()
	if err := s.messageRepo.MarkViewed(ctx, messageID, readAt); err != nil {
		return err
	}

	// 已读回执推给发送方在线连接
	if sender, ok := s.registry.Lookup(msg.SenderID); ok {
		_ = sender.Send(ws.EventReadReceipt, &ws.ReadReceiptPayload{
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			ReaderID:       viewerID,
			ReadAt:         readAt.Format(time.RFC3339),
		})
	}

	return nil
}

// peerKey 生成单聊唯一标识，小 ID 在前，与参数顺序无关
func peerKey(a, b uint64) string {
	if a < b {
		return fmt.Sprintf("%d_%d", a, b)
	}
	return fmt.Sprintf("%d_%d", b, a)
}

func parsePeerID(peerKey string, currentUserID uint64) (uint64, error) {
	var u1, u2 uint64
	_, err := fmt.Sscanf(peerKey, "%d_%d", &u1, &u2)
	if err != nil {
		return 0, err
	}
	if u1 == currentUserID {
		return u2, nil
	}
	return u1, nil
}

func (s *imServiceImpl) toMessageDTO(m *mongo.Message) *dto.MessageDTO {
	d := &dto.MessageDTO{}
	_ = copier.Copy(d, m)
	return d
}
