package handler

import (
	"Ripple/internal/api/config"
	"Ripple/internal/api/dto"
	"Ripple/internal/pkg/security"
	"Ripple/internal/pkg/ws"
	"Ripple/internal/service"
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

type recordingIMService struct {
	mu        sync.Mutex
	sent      []*dto.SendMessageReq
	viewed    []string
	returnErr error
}

func (s *recordingIMService) SendMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.returnErr != nil {
		return nil, s.returnErr
	}
	s.sent = append(s.sent, req)
	return &dto.MessageDTO{
		ID:             fmt.Sprintf("m%d", len(s.sent)),
		ConversationID: 1,
		SenderID:       senderID,
		RecipientID:    req.RecipientID,
		Content:        req.Content,
		Seq:            uint64(len(s.sent)),
		CreatedAt:      time.Now(),
	}, nil
}

func (s *recordingIMService) PersistMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error) {
	return s.SendMessage(ctx, senderID, req)
}

func (s *recordingIMService) GetOrCreateConversation(ctx context.Context, userID, targetUserID uint64) (*dto.ConversationDTO, error) {
	return &dto.ConversationDTO{ConversationID: 1}, nil
}

func (s *recordingIMService) GetChatHistory(ctx context.Context, userID uint64, convID uint64, afterSeq uint64, limit int) ([]*dto.MessageDTO, error) {
	return nil, nil
}

func (s *recordingIMService) GetConversationList(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error) {
	return nil, nil
}

func (s *recordingIMService) MarkViewed(ctx context.Context, viewerID uint64, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewed = append(s.viewed, messageID)
	return nil
}

func (s *recordingIMService) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type recordingCallService struct {
	mu     sync.Mutex
	offers []uint64
}

func (s *recordingCallService) RelayOffer(ctx context.Context, fromID, toID uint64, offer json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers = append(s.offers, toID)
	return service.ErrPeerUnreachable
}

func (s *recordingCallService) RelayAnswer(ctx context.Context, fromID, toID uint64, answer json.RawMessage) {
}

func (s *recordingCallService) RelayCandidate(ctx context.Context, fromID, toID uint64, candidate json.RawMessage) {
}

type gatewayFixture struct {
	srv      *httptest.Server
	im       *recordingIMService
	call     *recordingCallService
	registry *ws.Registry
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &gatewayFixture{
		im:       &recordingIMService{},
		call:     &recordingCallService{},
		registry: ws.NewRegistry(),
	}

	h := NewWsHandler(f.im, f.call, f.registry, config.IMConfig{})
	r := gin.New()
	r.GET("/api/im", h.Connect)

	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *gatewayFixture) dial(t *testing.T, userID uint64) *websocket.Conn {
	t.Helper()
	token, err := security.GenerateToken(userID, nil)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/im?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("拨号失败: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("序列化负载失败: %v", err)
	}
	frame, _ := json.Marshal(&ws.Envelope{Type: event, Data: data})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("写入事件失败: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) *ws.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("读取事件失败: %v", err)
	}
	var env ws.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("解析出站帧失败: %v", err)
	}
	return &env
}

// register 走完注册握手，并用一条消息确认连接已可分发业务事件
func register(t *testing.T, conn *websocket.Conn, userID uint64) {
	t.Helper()
	writeEvent(t, conn, ws.EventRegister, &ws.RegisterPayload{UserID: userID})
	writeEvent(t, conn, ws.EventSendMessage, &ws.SendMessagePayload{RecipientID: userID + 1, Content: "握手确认"})
	if env := readFrame(t, conn); env.Type != ws.EventMessageSent {
		t.Fatalf("注册确认收到事件 = %s, 期望 %s", env.Type, ws.EventMessageSent)
	}
}

func TestConnectRejectsMissingToken(t *testing.T) {
	f := newGatewayFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/im"
	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("无 Token 的连接不应升级成功")
	}
}

// 残缺帧回结构化错误事件，连接保持可用
func TestMalformedFrameKeepsConnectionAlive(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, 1)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type": `)); err != nil {
		t.Fatalf("写入残缺帧失败: %v", err)
	}

	env := readFrame(t, conn)
	if env.Type != ws.EventError {
		t.Fatalf("收到事件 = %s, 期望 %s", env.Type, ws.EventError)
	}
	var payload ws.ErrorPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("解析错误负载失败: %v", err)
	}
	if payload.Code != service.BadRequest {
		t.Fatalf("错误码 = %d, 期望 %d", payload.Code, service.BadRequest)
	}

	// 连接没有被断开，注册后业务照常
	register(t, conn, 1)
}

// 注册前的业务事件静默丢弃，不触达服务层
func TestBusinessEventsBeforeRegisterDropped(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, 1)

	writeEvent(t, conn, ws.EventSendMessage, &ws.SendMessagePayload{RecipientID: 2, Content: "抢跑"})
	writeEvent(t, conn, ws.EventMarkViewed, &ws.MarkViewedPayload{MessageID: "m1"})

	// 同一连接事件按序处理：注册后的消息得到回执时，前面的事件已被丢弃
	register(t, conn, 1)

	if got := f.im.sentCount(); got != 1 {
		t.Fatalf("服务层收到 %d 次发送调用, 期望仅注册后的 1 次", got)
	}
	f.im.mu.Lock()
	viewed := len(f.im.viewed)
	f.im.mu.Unlock()
	if viewed != 0 {
		t.Fatal("注册前的已读事件不应触达服务层")
	}
}

// 注册身份必须与连接凭据一致
func TestRegisterIdentityMismatch(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, 1)

	writeEvent(t, conn, ws.EventRegister, &ws.RegisterPayload{UserID: 2})

	env := readFrame(t, conn)
	if env.Type != ws.EventError {
		t.Fatalf("收到事件 = %s, 期望 %s", env.Type, ws.EventError)
	}
	var payload ws.ErrorPayload
	_ = json.Unmarshal(env.Data, &payload)
	if payload.Code != service.Unauthorized {
		t.Fatalf("错误码 = %d, 期望 %d", payload.Code, service.Unauthorized)
	}
	if _, ok := f.registry.Lookup(1); ok {
		t.Fatal("冒名注册失败后连接不应可寻址")
	}
	if _, ok := f.registry.Lookup(2); ok {
		t.Fatal("冒名注册不应以他人身份入表")
	}

	// 用真实身份重新注册即恢复
	register(t, conn, 1)
	if _, ok := f.registry.Lookup(1); !ok {
		t.Fatal("注册成功后应可寻址")
	}
}

// 不在线的被叫应触发 call-unreachable 回告而不是普通错误
func TestCallOfferUnreachableSignal(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, 1)
	register(t, conn, 1)

	writeEvent(t, conn, ws.EventCallUser, &ws.SignalPayload{To: 9, Offer: json.RawMessage(`{"type":"offer"}`)})

	env := readFrame(t, conn)
	if env.Type != ws.EventCallUnreachable {
		t.Fatalf("收到事件 = %s, 期望 %s", env.Type, ws.EventCallUnreachable)
	}
	var payload ws.UnreachablePayload
	_ = json.Unmarshal(env.Data, &payload)
	if payload.To != 9 {
		t.Fatalf("不可达回告目标 = %d, 期望 9", payload.To)
	}
}

// 任何断开路径都必须注销连接
func TestUnregisterOnDisconnect(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, 1)
	register(t, conn, 1)

	if _, ok := f.registry.Lookup(1); !ok {
		t.Fatal("注册后应可寻址")
	}

	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := f.registry.Lookup(1); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("断开后连接未被注销")
}
