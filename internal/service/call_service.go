package service

import (
	"Ripple/internal/pkg/ws"
	"context"
	log "log/slog"

	"github.com/goccy/go-json"
)

// CallService 呼叫信令中继：在两个在线用户之间转发协商报文
// 服务端不保存任何通话状态，也不解析 SDP/ICE 内容
type CallService interface {
	// RelayOffer 被叫不在线时返回 ErrPeerUnreachable，呼叫不排队等待
	RelayOffer(ctx context.Context, fromID, toID uint64, offer json.RawMessage) error
	// RelayAnswer 主叫已离线则静默丢弃（可能已挂断超时）
	RelayAnswer(ctx context.Context, fromID, toID uint64, answer json.RawMessage)
	// RelayCandidate 目标离线则静默丢弃，候选本就成批到达
	RelayCandidate(ctx context.Context, fromID, toID uint64, candidate json.RawMessage)
}

type callServiceImpl struct {
	registry *ws.Registry
}

// NewCallService 与消息投递共用同一张在线注册表
func NewCallService(registry *ws.Registry) CallService {
	return &callServiceImpl{registry: registry}
}

func (s *callServiceImpl) RelayOffer(ctx context.Context, fromID, toID uint64, offer json.RawMessage) error {
	peer, ok := s.registry.Lookup(toID)
	if !ok {
		return ErrPeerUnreachable
	}

	err := peer.Send(ws.EventIncomingCall, &ws.IncomingCallPayload{From: fromID, Offer: offer})
	if err != nil {
		log.WarnContext(ctx, "呼叫转发失败", "fromID", fromID, "toID", toID, "err", err)
		return ErrPeerUnreachable
	}
	return nil
}

func (s *callServiceImpl) RelayAnswer(ctx context.Context, fromID, toID uint64, answer json.RawMessage) {
	peer, ok := s.registry.Lookup(toID)
	if !ok {
		return
	}

	if err := peer.Send(ws.EventCallAnswered, &ws.CallAnsweredPayload{From: fromID, Answer: answer}); err != nil {
		log.WarnContext(ctx, "应答转发失败", "fromID", fromID, "toID", toID, "err", err)
	}
}

func (s *callServiceImpl) RelayCandidate(ctx context.Context, fromID, toID uint64, candidate json.RawMessage) {
	peer, ok := s.registry.Lookup(toID)
	if !ok {
		return
	}

	_ = peer.Send(ws.EventIceCandidate, &ws.CandidatePayload{From: fromID, Candidate: candidate})
}
