package gateway

import (
	"context"
	"errors"

	"github.com/dep2p/go-valnet/pkg/types"
)

// ============================================================================
//                              命令类型
// ============================================================================

// ConnectionRequest 发往连接网关的命令
type ConnectionRequest interface {
	// Peer 返回命令的目标节点
	Peer() types.PeerID
}

// DialRequest 拨号命令
type DialRequest struct {
	// PeerID 目标节点
	PeerID types.PeerID

	// Addr 拨号地址（可含认证段以固定期望公钥）
	Addr types.NetworkAddress
}

// Peer 实现 ConnectionRequest
func (r DialRequest) Peer() types.PeerID { return r.PeerID }

// DisconnectRequest 断开命令
type DisconnectRequest struct {
	// PeerID 目标节点
	PeerID types.PeerID
}

// Peer 实现 ConnectionRequest
func (r DisconnectRequest) Peer() types.PeerID { return r.PeerID }

// ============================================================================
//                              命令发送器
// ============================================================================

// ErrChannelFull 命令通道已满
//
// 表示网关过载。调用方应跳过本次命令、等下个调和 tick 重试，
// 而不是阻塞调和循环。
var ErrChannelFull = errors.New("gateway command channel full")

// RequestSender 网关命令发送器
//
// 包装有界命令通道。命令从发送方视角是 fire-and-forget：
// 执行结果之后通过通知流观察，命令发出与生效解耦。
type RequestSender struct {
	ch chan<- ConnectionRequest
}

// NewRequestSender 创建命令发送器
func NewRequestSender(ch chan<- ConnectionRequest) RequestSender {
	return RequestSender{ch: ch}
}

// TrySend 非阻塞发送命令
//
// 通道满时返回 ErrChannelFull，绝不阻塞。
func (s RequestSender) TrySend(req ConnectionRequest) error {
	select {
	case s.ch <- req:
		return nil
	default:
		return ErrChannelFull
	}
}

// Send 阻塞发送命令（受 ctx 取消约束）
func (s RequestSender) Send(ctx context.Context, req ConnectionRequest) error {
	select {
	case s.ch <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
