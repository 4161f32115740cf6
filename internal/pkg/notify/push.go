package notify

import (
	"Ripple/internal/api/config"
	"context"
	log "log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// PushReq 推送网关请求体
type PushReq struct {
	UserID  uint64 `json:"user_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Pusher 离线推送接口：接收方不在线时通知推送网关
type Pusher interface {
	PushOffline(ctx context.Context, userID uint64, preview string)
}

type pusherImpl struct {
	client *resty.Client
	cfg    config.PushConfig
}

func NewPusher(cfg config.PushConfig) Pusher {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = 3 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Authorization", "Bearer "+cfg.Token)

	return &pusherImpl{client: client, cfg: cfg}
}

// PushOffline 尽力而为：推送失败不回传给发送链路
func (s *pusherImpl) PushOffline(ctx context.Context, userID uint64, preview string) {
	if !s.cfg.Enable {
		return
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(&PushReq{UserID: userID, Title: "新消息", Content: preview}).
		Post(s.cfg.URL)
	if err != nil {
		log.Warn("离线推送失败", "userID", userID, "err", err)
		return
	}
	if resp.IsError() {
		log.Warn("离线推送网关返回异常", "userID", userID, "status", resp.StatusCode())
	}
}
