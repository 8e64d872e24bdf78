package valnet

import (
	"context"
	"sync"

	"github.com/dep2p/go-valnet/internal/core/connectivity"
	"github.com/dep2p/go-valnet/internal/core/gateway"
	"github.com/dep2p/go-valnet/internal/core/trust"
	"github.com/dep2p/go-valnet/internal/protocol/discovery"
	"github.com/dep2p/go-valnet/internal/protocol/health"
	"github.com/dep2p/go-valnet/pkg/lib/crypto"
	"github.com/dep2p/go-valnet/pkg/types"
)

// ============================================================================
//                              Network 句柄
// ============================================================================

// Network 一个已启动的网络实例
//
// 由 Builder.Build 返回。持有全部运行中的组件；Close 取消
// 运行上下文并等待所有控制循环退出。
type Network struct {
	local      types.PeerID
	role       types.RoleType
	listen     types.NetworkAddress
	advertised types.NetworkAddress
	protocols  []types.ProtocolID

	registry *trust.Registry
	gater    *trust.Gater
	sender   gateway.RequestSender
	gw       *gateway.Memory
	notifier *gateway.Notifier

	mgr     *connectivity.Manager
	checker *health.Checker
	gossip  *discovery.Service

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// PeerID 返回本地节点标识
func (n *Network) PeerID() types.PeerID {
	return n.local
}

// Role 返回节点角色
func (n *Network) Role() types.RoleType {
	return n.role
}

// ListenAddress 返回监听地址
func (n *Network) ListenAddress() types.NetworkAddress {
	return n.listen
}

// AdvertisedAddress 返回带认证段的对外公告地址
func (n *Network) AdvertisedAddress() types.NetworkAddress {
	return n.advertised
}

// Protocols 返回装配期注册的协议标识
//
// 注册集合决定哪些入站协议请求可被路由，启动后固定。
func (n *Network) Protocols() []types.ProtocolID {
	return append([]types.ProtocolID(nil), n.protocols...)
}

// RequestSender 返回网关命令发送端
func (n *Network) RequestSender() gateway.RequestSender {
	return n.sender
}

// Gateway 返回进程内连接网关（测试与进程内部署用）
func (n *Network) Gateway() *gateway.Memory {
	return n.gw
}

// Discovery 返回地址发现服务（未启用时为 nil）
func (n *Network) Discovery() *discovery.Service {
	return n.gossip
}

// UpdateEligiblePeers 在线提交合格节点集合变更
//
// 启用连接调和引擎时经其控制循环串行应用（被移出的已连接
// 节点随后被断开）；未启用时直接替换注册表。
func (n *Network) UpdateEligiblePeers(ctx context.Context, nodes map[types.PeerID]crypto.NetworkPublicKeys) error {
	if n.mgr != nil {
		return n.mgr.UpdateEligibleNodes(ctx, nodes)
	}
	n.registry.Replace(nodes)
	return nil
}

// EligiblePeerCount 返回当前合格节点数
func (n *Network) EligiblePeerCount() int {
	return n.registry.Len()
}

// DialQueueSize 查询当前拨号队列深度
//
// 未启用连接调和引擎时恒为 0。
func (n *Network) DialQueueSize(ctx context.Context) (int, error) {
	if n.mgr == nil {
		return 0, nil
	}
	return n.mgr.DialQueueSize(ctx)
}

// ConnectionCount 返回活动连接数
func (n *Network) ConnectionCount() int {
	return n.gw.ConnectionCount()
}

// TrustStats 返回信任门控统计
func (n *Network) TrustStats() trust.GaterStats {
	return n.gater.Stats()
}

// Close 停止全部组件并等待控制循环退出
//
// 幂等。在途拨号不被主动取消，其结果被丢弃。
func (n *Network) Close() {
	n.closeOnce.Do(func() {
		n.cancel()
		if n.gossip != nil {
			n.gossip.Wait()
		}
		if n.checker != nil {
			n.checker.Wait()
		}
		if n.mgr != nil {
			n.mgr.Wait()
		}
		n.gw.Wait()
		n.notifier.Close()
	})
}
