package job

import (
	"Ripple/internal/pkg/logger"
	"Ripple/internal/pkg/mongo"
	"Ripple/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"time"

	"github.com/google/uuid"
	mongoDB "go.mongodb.org/mongo-driver/mongo"
)

// PreviewRepairJob 会话预览校准任务
// 定序与明细写入是两次独立的原子写，中间崩溃会留下过期的列表预览，
// 该任务把预览重新对齐到明细库里真实的最新一条消息
type PreviewRepairJob struct {
	convRepo    repository.ConversationRepo
	messageRepo mongo.MessageRepo
}

func NewPreviewRepairJob(convRepo repository.ConversationRepo, messageRepo mongo.MessageRepo) *PreviewRepairJob {
	return &PreviewRepairJob{
		convRepo:    convRepo,
		messageRepo: messageRepo,
	}
}

func (s *PreviewRepairJob) Run() {
	traceID := "job-preview-" + uuid.NewString()
	ctx := context.WithValue(context.Background(), logger.TraceIDKey, traceID)

	ids, err := s.convRepo.ListConversationIDs(ctx, 0)
	if err != nil {
		log.ErrorContext(ctx, "拉取会话列表失败", "err", err)
		return
	}

	log.InfoContext(ctx, "PreviewRepairJob processing", "conv_count", len(ids))

	repaired := 0
	for _, convID := range ids {
		conv, err := s.convRepo.GetConversation(ctx, convID)
		if err != nil {
			log.WarnContext(ctx, "读取会话失败", "convID", convID, "err", err)
			continue
		}

		latest, err := s.messageRepo.GetLatest(ctx, convID)
		if err != nil {
			// 空会话没有明细，跳过
			if errors.Is(err, mongoDB.ErrNoDocuments) {
				continue
			}
			log.WarnContext(ctx, "读取最新消息失败", "convID", convID, "err", err)
			continue
		}

		if conv.LastMsgContent == latest.Content && conv.LastSenderID == latest.SenderID {
			continue
		}

		// 预览落后于明细，用明细重写
		if latest.Seq >= conv.MaxMsgSeq {
			err = s.convRepo.UpdatePreview(ctx, convID, latest.Content, latest.SenderID, latest.CreatedAt)
			if err != nil {
				log.WarnContext(ctx, "预览校准失败", "convID", convID, "err", err)
				continue
			}
			repaired++
		}
	}

	log.InfoContext(ctx, "PreviewRepairJob done", "repaired", repaired, "at", time.Now())
}
