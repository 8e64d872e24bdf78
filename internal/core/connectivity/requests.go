package connectivity

import (
	"github.com/dep2p/go-valnet/pkg/lib/crypto"
	"github.com/dep2p/go-valnet/pkg/types"
)

// ============================================================================
//                              管理请求
// ============================================================================

// Request 发往连接管理器的管理请求
//
// 既用于在线成员变更（合格集合、地址更新），也用于可观测性查询。
type Request interface {
	isRequest()
}

// UpdateEligibleNodes 整体替换合格节点集合
//
// 新晋合格的节点获得全新的连接记录（退避归位到基础延迟，
// 因此会被尽快拨号，而不是继承此前某段无关历史累积的退避）。
// 被移出集合且处于已连接状态的节点在下一个调和 pass 被断开。
type UpdateEligibleNodes struct {
	// Nodes 新的合格节点快照
	Nodes map[types.PeerID]crypto.NetworkPublicKeys
}

func (UpdateEligibleNodes) isRequest() {}

// UpdateAddresses 更新某个节点的已知地址（整体替换）
//
// 通常由地址发现协议发出。空地址列表表示删除已发现的地址，
// 回落到种子地址簿（若有）。
type UpdateAddresses struct {
	// PeerID 目标节点
	PeerID types.PeerID

	// Addrs 候选地址，按优先级排列
	Addrs []types.NetworkAddress
}

func (UpdateAddresses) isRequest() {}

// GetDialQueueSize 查询当前拨号队列深度（可观测性/测试）
//
// Resp 建议使用容量 >= 1 的通道；管理器以非阻塞方式回写，
// 无人接收时结果被丢弃。
type GetDialQueueSize struct {
	// Resp 结果通道
	Resp chan<- int
}

func (GetDialQueueSize) isRequest() {}
