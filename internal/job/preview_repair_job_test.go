package job

import (
	"Ripple/internal/model"
	"Ripple/internal/pkg/mongo"
	"Ripple/internal/repository"
	"context"
	"testing"
	"time"

	mongoDB "go.mongodb.org/mongo-driver/mongo"
)

// 只覆盖任务用到的方法，其余沿用内嵌接口的空实现
type repairConvRepo struct {
	repository.ConversationRepo
	convs    map[uint64]*model.Conversation
	repaired map[uint64]string
}

func (s *repairConvRepo) ListConversationIDs(ctx context.Context, limit int) ([]uint64, error) {
	ids := make([]uint64, 0, len(s.convs))
	for id := range s.convs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *repairConvRepo) GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error) {
	return s.convs[convID], nil
}

func (s *repairConvRepo) UpdatePreview(ctx context.Context, convID uint64, lastMsg string, senderID uint64, at time.Time) error {
	s.repaired[convID] = lastMsg
	return nil
}

type repairMsgRepo struct {
	mongo.MessageRepo
	latest map[uint64]*mongo.Message
}

func (s *repairMsgRepo) GetLatest(ctx context.Context, convID uint64) (*mongo.Message, error) {
	m, ok := s.latest[convID]
	if !ok {
		return nil, mongoDB.ErrNoDocuments
	}
	return m, nil
}

func TestPreviewRepairJob(t *testing.T) {
	convRepo := &repairConvRepo{
		convs: map[uint64]*model.Conversation{
			// 预览落后于明细：定序已到 3 但预览还是第 2 条
			1: {ID: 1, MaxMsgSeq: 3, LastMsgContent: "旧预览", LastSenderID: 1},
			// 预览与明细一致
			2: {ID: 2, MaxMsgSeq: 1, LastMsgContent: "最新", LastSenderID: 2},
			// 空会话，无明细
			3: {ID: 3},
		},
		repaired: make(map[uint64]string),
	}
	msgRepo := &repairMsgRepo{
		latest: map[uint64]*mongo.Message{
			1: {ID: "m3", ConversationID: 1, SenderID: 2, Content: "新预览", Seq: 3, CreatedAt: time.Now()},
			2: {ID: "m1", ConversationID: 2, SenderID: 2, Content: "最新", Seq: 1, CreatedAt: time.Now()},
		},
	}

	NewPreviewRepairJob(convRepo, msgRepo).Run()

	if got := convRepo.repaired[1]; got != "新预览" {
		t.Fatalf("会话 1 预览应被校准, got %q", got)
	}
	if _, ok := convRepo.repaired[2]; ok {
		t.Fatal("预览一致的会话不应被重写")
	}
	if _, ok := convRepo.repaired[3]; ok {
		t.Fatal("空会话不应被重写")
	}
}
