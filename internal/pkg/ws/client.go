package ws

import (
	"errors"
	log "log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrClientClosed  = errors.New("连接已关闭")
	ErrSendBufferFul = errors.New("发送缓冲已满")
)

const writeTimeout = 10 * time.Second

// Client 基于 gorilla/websocket 的 Peer 实现
// 所有出站写入经由带缓冲的 send 通道串行化到单一写循环
type Client struct {
	id     string
	userID uint64
	conn   *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(userID uint64, conn *websocket.Conn, bufSize int) *Client {
	c := &Client{
		id:     uuid.New().String(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, bufSize),
		done:   make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) UserID() uint64 {
	return c.userID
}

// Send 序列化出站事件并入队，不阻塞调用方
// 缓冲打满说明客户端消费不过来，丢弃该帧并交由上层决定是否断开
func (c *Client) Send(event string, data any) error {
	frame, err := json.Marshal(&OutboundFrame{Type: event, Data: data})
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClientClosed
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFul
	}
}

// Close 幂等关闭，任何退出路径均可安全调用
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writeLoop 唯一的底层写协程
func (c *Client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Warn("WS 推送失败", "userID", c.userID, "connID", c.id, "err", err)
				c.Close()
				return
			}
		}
	}
}
