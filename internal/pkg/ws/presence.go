package ws

import (
	"sync"
)

// Peer 一条已注册连接的可寻址抽象
// Registry 与转发逻辑只依赖该接口，便于单元测试替换
type Peer interface {
	ID() string
	UserID() uint64
	Send(event string, data any) error
	Close()
}

// Registry 在线注册表：用户 ID 到活跃连接的进程内映射
// 进程重启后为空，客户端重连时重新注册
type Registry struct {
	mu    sync.RWMutex
	peers map[uint64]Peer
}

func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[uint64]Peer),
	}
}

// Register 注册连接，同一用户后注册者获胜
// 被顶替的旧连接不在此处关闭，由其自身断开时清理
func (r *Registry) Register(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.UserID()] = p
}

// Lookup 查找用户当前的活跃连接，无阻塞
func (r *Registry) Lookup(userID uint64) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[userID]
	return p, ok
}

// Unregister 仅当表项仍指向该连接时移除
// 迟到的断开事件不能误删同一用户的新注册
func (r *Registry) Unregister(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.peers[p.UserID()]; ok && cur.ID() == p.ID() {
		delete(r.peers, p.UserID())
	}
}

// Online 当前在线连接数
func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
