package gateway

import (
	"context"
	"sync"

	"github.com/dep2p/go-valnet/internal/core/trust"
	"github.com/dep2p/go-valnet/pkg/lib/crypto"
	"github.com/dep2p/go-valnet/pkg/types"
)

// ============================================================================
//                              Memory - 进程内连接网关
// ============================================================================

// HandshakeFunc 模拟一次出站传输握手
//
// 返回远端的静态身份公钥；失败（超时、被对端拒绝、套接字错误）
// 返回 error。真实部署中这一步由传输层的 Noise-IK 握手完成。
type HandshakeFunc func(ctx context.Context, peer types.PeerID, addr types.NetworkAddress) (crypto.PublicKey, error)

// Memory 进程内连接网关
//
// 实现网关契约：消费命令通道上的 Dial/Disconnect 命令，
// 在握手边界执行信任门控，把连接/断开通知发布到扇出器。
// 拨号失败与连接后断开统一以 Disconnected 通知呈现，
// 不区分失败原因（调和引擎的退避对两者一视同仁）。
type Memory struct {
	local     types.PeerID
	gater     *trust.Gater
	reqs      <-chan ConnectionRequest
	notifier  *Notifier
	handshake HandshakeFunc

	mu    sync.Mutex
	conns map[types.PeerID]types.NetworkAddress

	wg sync.WaitGroup
}

// NewMemory 创建进程内网关
//
// gater 为 nil 时不做信任检查（纯测试场景）。
func NewMemory(local types.PeerID, gater *trust.Gater, reqs <-chan ConnectionRequest, notifier *Notifier, handshake HandshakeFunc) *Memory {
	return &Memory{
		local:     local,
		gater:     gater,
		reqs:      reqs,
		notifier:  notifier,
		handshake: handshake,
		conns:     make(map[types.PeerID]types.NetworkAddress),
	}
}

// Start 启动网关命令处理循环
func (m *Memory) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case req, ok := <-m.reqs:
				if !ok {
					return
				}
				m.handle(ctx, req)
			}
		}
	}()
}

// Wait 等待命令处理循环退出
func (m *Memory) Wait() {
	m.wg.Wait()
}

func (m *Memory) handle(ctx context.Context, req ConnectionRequest) {
	switch r := req.(type) {
	case DialRequest:
		m.handleDial(ctx, r)
	case DisconnectRequest:
		m.handleDisconnect(r.PeerID)
	}
}

// handleDial 执行一次出站拨号
func (m *Memory) handleDial(ctx context.Context, req DialRequest) {
	// 重复并发连接归并：已有逻辑连接则忽略本次拨号
	m.mu.Lock()
	_, connected := m.conns[req.PeerID]
	m.mu.Unlock()
	if connected {
		logger.Debug("忽略重复拨号",
			"peer", req.PeerID.ShortString())
		return
	}

	if m.gater != nil {
		if err := m.gater.AuthorizeDial(req.PeerID, req.Addr); err != nil {
			m.notifyDisconnected(req.PeerID, req.Addr)
			return
		}
	}

	remoteKey, err := m.dialHandshake(ctx, req)
	if err != nil {
		logger.Debug("拨号失败",
			"peer", req.PeerID.ShortString(),
			"addr", req.Addr.String(),
			"err", err)
		m.notifyDisconnected(req.PeerID, req.Addr)
		return
	}

	if m.gater != nil {
		pinned, _ := crypto.PublicKeyFromBytes(req.Addr.IdentityPubKey())
		if err := m.gater.AuthorizeHandshake(types.DirOutbound, req.PeerID, remoteKey, pinned); err != nil {
			m.notifyDisconnected(req.PeerID, req.Addr)
			return
		}
	}

	m.addConn(req.PeerID, req.Addr, types.DirOutbound)
}

func (m *Memory) dialHandshake(ctx context.Context, req DialRequest) (crypto.PublicKey, error) {
	if m.handshake != nil {
		return m.handshake(ctx, req.PeerID, req.Addr)
	}
	// 无握手函数时信任地址中固定的公钥（进程内部署）
	return crypto.PublicKeyFromBytes(req.Addr.IdentityPubKey())
}

// notifyDisconnected 把拨号失败呈现为断开通知
//
// 从连接管理器视角，"从未连上"与"连上后断开"是同一件事。
func (m *Memory) notifyDisconnected(peer types.PeerID, addr types.NetworkAddress) {
	m.notifier.Publish(types.ConnectionNotification{
		PeerID: peer,
		Addr:   addr,
		Event:  types.EventDisconnected,
	})
}

// handleDisconnect 执行断开命令
func (m *Memory) handleDisconnect(peer types.PeerID) {
	m.mu.Lock()
	addr, connected := m.conns[peer]
	if connected {
		delete(m.conns, peer)
	}
	m.mu.Unlock()

	if connected {
		m.notifier.Publish(types.ConnectionNotification{
			PeerID: peer,
			Addr:   addr,
			Event:  types.EventDisconnected,
		})
	}
}

// ============================================================================
//                              入站与远端事件模拟
// ============================================================================

// AcceptInbound 处理一条入站连接（对端握手完成）
//
// 相互认证模式下远端公钥必须在注册表中；服务端单向认证模式
// 接受任意公钥。与现有连接重复时归并为单个逻辑连接（无事件）。
func (m *Memory) AcceptInbound(peer types.PeerID, addr types.NetworkAddress, remoteKey crypto.PublicKey) error {
	if m.gater != nil {
		if err := m.gater.AuthorizeHandshake(types.DirInbound, peer, remoteKey, crypto.PublicKey{}); err != nil {
			return err
		}
	}

	m.mu.Lock()
	if _, connected := m.conns[peer]; connected {
		m.mu.Unlock()
		return nil
	}
	m.conns[peer] = addr
	m.mu.Unlock()

	m.notifier.Publish(types.ConnectionNotification{
		PeerID: peer,
		Addr:   addr,
		Event:  types.EventConnected,
	})
	return nil
}

// DropPeer 模拟远端断开（网络抖动、对端下线）
func (m *Memory) DropPeer(peer types.PeerID) {
	m.handleDisconnect(peer)
}

// ============================================================================
//                              查询
// ============================================================================

// Connected 检查节点是否有活动连接
func (m *Memory) Connected(peer types.PeerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.conns[peer]
	return ok
}

// ConnectionCount 返回活动连接数
func (m *Memory) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.conns)
}

func (m *Memory) addConn(peer types.PeerID, addr types.NetworkAddress, dir types.Direction) {
	m.mu.Lock()
	if _, dup := m.conns[peer]; dup {
		m.mu.Unlock()
		return
	}
	m.conns[peer] = addr
	m.mu.Unlock()

	logger.Debug("连接建立",
		"peer", peer.ShortString(),
		"direction", dir.String())
	m.notifier.Publish(types.ConnectionNotification{
		PeerID: peer,
		Addr:   addr,
		Event:  types.EventConnected,
	})
}
