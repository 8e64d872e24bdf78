// Package trust 实现合格节点注册表与握手信任门控
//
// 注册表是"当前被授权连接的节点"的共享可变事实来源，
// 由连接管理器与握手校验路径按引用共享：
// 读取方（握手校验、调和循环）持读锁；
// 成员变更整体替换映射而非原地合并，读取方永远不会
// 观察到部分更新的集合（支持节点驱逐）。
package trust

import (
	"sync"

	"github.com/dep2p/go-valnet/pkg/lib/crypto"
	"github.com/dep2p/go-valnet/pkg/types"
)

// Registry 合格节点注册表
//
// PeerID → NetworkPublicKeys 映射，反映当前被授权的集合。
// 唯一允许多任务写入的共享结构，由读写锁保护。
type Registry struct {
	mu    sync.RWMutex
	peers map[types.PeerID]crypto.NetworkPublicKeys
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[types.PeerID]crypto.NetworkPublicKeys),
	}
}

// Replace 整体替换注册表内容
//
// 旧条目全部丢弃，不与新快照合并。传入的映射会被复制，
// 调用方之后对它的修改不影响注册表。
func (r *Registry) Replace(snapshot map[types.PeerID]crypto.NetworkPublicKeys) {
	next := make(map[types.PeerID]crypto.NetworkPublicKeys, len(snapshot))
	for id, keys := range snapshot {
		next[id] = keys
	}

	r.mu.Lock()
	r.peers = next
	r.mu.Unlock()
}

// Snapshot 返回当前注册表内容的副本
//
// 单次调和 pass 基于一份快照工作，看到的要么是更新前、
// 要么是更新后的完整集合，不会混合。
func (r *Registry) Snapshot() map[types.PeerID]crypto.NetworkPublicKeys {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[types.PeerID]crypto.NetworkPublicKeys, len(r.peers))
	for id, keys := range r.peers {
		out[id] = keys
	}
	return out
}

// PublicKeys 查询节点的公钥集合
func (r *Registry) PublicKeys(id types.PeerID) (crypto.NetworkPublicKeys, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys, ok := r.peers[id]
	return keys, ok
}

// Contains 检查节点是否在注册表中
func (r *Registry) Contains(id types.PeerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.peers[id]
	return ok
}

// Len 返回注册表中的节点数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.peers)
}
