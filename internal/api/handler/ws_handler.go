package handler

import (
	"Ripple/internal/api/config"
	"Ripple/internal/api/dto"
	"Ripple/internal/pkg/consts"
	"Ripple/internal/pkg/response"
	"Ripple/internal/pkg/security"
	"Ripple/internal/pkg/ws"
	"Ripple/internal/service"
	"context"
	"errors"
	log "log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WsHandler struct {
	imService   service.IMService
	callService service.CallService
	registry    *ws.Registry
	bufSize     int
}

func NewWsHandler(im service.IMService, call service.CallService, registry *ws.Registry, cfg config.IMConfig) *WsHandler {
	bufSize := cfg.SendBufferSize
	if bufSize <= 0 {
		bufSize = consts.DefaultSendBufferSize
	}
	return &WsHandler{
		imService:   im,
		callService: call,
		registry:    registry,
		bufSize:     bufSize,
	}
}

// Connect 实时网关入口：鉴权、升级、事件分发
func (s *WsHandler) Connect(c *gin.Context) {
	// 鉴权
	token := c.Query("token")
	if token == "" {
		response.Fail(c, response.Unauthorized, "Token 缺失或格式错误")
		return
	}
	claims, err := security.ValidateToken(token)
	if err != nil {
		log.Warn("WS 鉴权失败", "err", err)
		response.Fail(c, response.Unauthorized, "Token 无效或已过期")
		return
	}
	userID := claims.UserID

	// 升级 Websocket
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WS 协议升级失败", "err", err)
		return
	}

	client := ws.NewClient(userID, conn, s.bufSize)

	// 任何退出路径都必须注销并关闭连接
	defer func() {
		s.registry.Unregister(client)
		client.Close()
		log.Info("用户 WS 连接已断开", "userID", userID, "connID", client.ID())
	}()

	log.Info("用户 WS 连接已建立", "userID", userID, "connID", client.ID())

	// 注册事件到达前，本连接不可被寻址，业务事件一律丢弃
	registered := false

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env ws.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.sendError(client, service.BadRequest, "事件格式错误")
			continue
		}

		if env.Type == ws.EventRegister {
			if s.handleRegister(client, claims, env.Data) {
				registered = true
			}
			continue
		}

		if !registered {
			log.Warn("未注册连接的事件被丢弃", "userID", userID, "event", env.Type)
			continue
		}

		s.dispatch(client, env)
	}
}

// handleRegister 声明身份必须与连接的 Token 一致
func (s *WsHandler) handleRegister(client *ws.Client, claims *security.UserClaims, data json.RawMessage) bool {
	var payload ws.RegisterPayload
	if err := ws.DecodePayload(data, &payload); err != nil {
		s.sendError(client, service.BadRequest, "注册事件格式错误")
		return false
	}
	if payload.UserID != claims.UserID {
		s.sendError(client, service.Unauthorized, "注册身份与凭据不符")
		return false
	}

	s.registry.Register(client)
	return true
}

// dispatch 闭集分发，未知事件记录后丢弃
func (s *WsHandler) dispatch(client *ws.Client, env ws.Envelope) {
	ctx := context.Background()

	switch env.Type {
	case ws.EventSendMessage:
		var payload ws.SendMessagePayload
		if err := ws.DecodePayload(env.Data, &payload); err != nil {
			s.sendError(client, service.BadRequest, "消息事件格式错误")
			return
		}
		res, err := s.imService.SendMessage(ctx, client.UserID(), &dto.SendMessageReq{
			ConversationID: payload.ConversationID,
			RecipientID:    payload.RecipientID,
			Content:        payload.Content,
		})
		if err != nil {
			s.sendServiceError(client, err)
			return
		}
		// 发送方回执：携带服务端分配的 ID 与时间，客户端据此校准乐观展示
		_ = client.Send(ws.EventMessageSent, res)

	case ws.EventMarkViewed:
		var payload ws.MarkViewedPayload
		if err := ws.DecodePayload(env.Data, &payload); err != nil {
			s.sendError(client, service.BadRequest, "已读事件格式错误")
			return
		}
		if err := s.imService.MarkViewed(ctx, client.UserID(), payload.MessageID); err != nil {
			s.sendServiceError(client, err)
		}

	case ws.EventCallUser:
		var payload ws.SignalPayload
		if err := ws.DecodePayload(env.Data, &payload); err != nil {
			s.sendError(client, service.BadRequest, "呼叫事件格式错误")
			return
		}
		err := s.callService.RelayOffer(ctx, client.UserID(), payload.To, payload.Offer)
		if errors.Is(err, service.ErrPeerUnreachable) {
			// 明确回告“不在线”，与普通错误区分，客户端展示离线而不是故障
			_ = client.Send(ws.EventCallUnreachable, &ws.UnreachablePayload{To: payload.To})
		}

	case ws.EventAnswerCall:
		var payload ws.SignalPayload
		if err := ws.DecodePayload(env.Data, &payload); err != nil {
			s.sendError(client, service.BadRequest, "应答事件格式错误")
			return
		}
		s.callService.RelayAnswer(ctx, client.UserID(), payload.To, payload.Answer)

	case ws.EventIceCandidate:
		var payload ws.SignalPayload
		if err := ws.DecodePayload(env.Data, &payload); err != nil {
			s.sendError(client, service.BadRequest, "候选事件格式错误")
			return
		}
		s.callService.RelayCandidate(ctx, client.UserID(), payload.To, payload.Candidate)

	default:
		log.Warn("未知 WS 事件被丢弃", "userID", client.UserID(), "event", env.Type)
	}
}

// sendServiceError 业务错误按错误表映射后回传本连接
func (s *WsHandler) sendServiceError(client *ws.Client, err error) {
	code, ok := service.ErrorMap[err]
	if !ok {
		code = service.InternalServerError
		log.Error("WS 业务处理失败", "userID", client.UserID(), "err", err)
		s.sendError(client, code, service.UnExpectedError.Error())
		return
	}
	s.sendError(client, code, err.Error())
}

func (s *WsHandler) sendError(client *ws.Client, code int, message string) {
	_ = client.Send(ws.EventError, &ws.ErrorPayload{Code: code, Message: message})
}
