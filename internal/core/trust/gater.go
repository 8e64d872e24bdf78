package trust

import (
	"errors"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-valnet/internal/core/identity"
	"github.com/dep2p/go-valnet/internal/core/metrics"
	"github.com/dep2p/go-valnet/pkg/lib/crypto"
	"github.com/dep2p/go-valnet/pkg/lib/log"
	"github.com/dep2p/go-valnet/pkg/types"
)

var logger = log.Logger("core/trust")

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrNotEligible 远端节点不在合格节点注册表中
	ErrNotEligible = errors.New("remote peer not in eligible registry")

	// ErrKeyMismatch 远端身份公钥与期望不符
	ErrKeyMismatch = errors.New("remote identity key mismatch")
)

// 同一节点的拒绝日志最小间隔（计数器不受限流影响）
const refusalLogInterval = time.Minute

// refusalCacheSize 最近被拒节点缓存容量
const refusalCacheSize = 256

// ============================================================================
//                              Gater 实现
// ============================================================================

// Gater 握手信任门控
//
// 在传输握手边界执行认证策略：
//   - 相互认证模式：任何入站/出站握手，远端公钥必须在握手时刻
//     存在于注册表中，否则拒绝。
//   - 服务端单向认证模式：监听方接受任意远端公钥；
//     拨号方在给定期望公钥时进行固定校验。
//
// 被拒绝的握手只记录日志并计数，从不升级为连接——在连接管理器
// 看来与"不可达"无异。
type Gater struct {
	mode     identity.AuthMode
	registry *Registry
	met      *metrics.Trust

	// 最近被拒节点，用于拒绝日志限流
	refused *lru.Cache[types.PeerID, time.Time]

	refusedDials      atomic.Int64
	refusedHandshakes atomic.Int64
}

// NewGater 创建握手信任门控
//
// met 为 nil 时不输出指标（仅保留内部计数）。
func NewGater(mode identity.AuthMode, registry *Registry, met *metrics.Trust) *Gater {
	refused, _ := lru.New[types.PeerID, time.Time](refusalCacheSize)
	return &Gater{
		mode:     mode,
		registry: registry,
		met:      met,
		refused:  refused,
	}
}

// AuthorizeDial 拨号前检查目标节点是否可连
//
// 相互认证模式下目标必须在注册表中。这是廉价的预检查，
// 真正的信任边界在 AuthorizeHandshake。
func (g *Gater) AuthorizeDial(peer types.PeerID, addr types.NetworkAddress) error {
	if g.mode.IsMutual() && !g.registry.Contains(peer) {
		g.refusedDials.Add(1)
		if g.met != nil {
			g.met.DialRefusals.Inc()
		}
		return ErrNotEligible
	}
	_ = addr
	return nil
}

// AuthorizeHandshake 握手完成前校验远端身份
//
// 参数：
//   - dir: 连接方向
//   - peer: 远端声称的节点标识
//   - remoteKey: 握手中观察到的远端静态公钥
//   - pinned: 拨号时固定的期望公钥（无则为零值；仅出站有意义）
func (g *Gater) AuthorizeHandshake(dir types.Direction, peer types.PeerID, remoteKey crypto.PublicKey, pinned crypto.PublicKey) error {
	if g.mode.IsMutual() {
		keys, ok := g.registry.PublicKeys(peer)
		if !ok {
			return g.refuse(dir, peer, ErrNotEligible)
		}
		if !keys.IdentityKey.Equal(remoteKey) {
			return g.refuse(dir, peer, ErrKeyMismatch)
		}
		return nil
	}

	// ServerOnly：监听方接受任意公钥，拨号方校验固定公钥
	if dir == types.DirOutbound && !pinned.IsZero() && !pinned.Equal(remoteKey) {
		return g.refuse(dir, peer, ErrKeyMismatch)
	}
	return nil
}

// refuse 记录一次握手拒绝
func (g *Gater) refuse(dir types.Direction, peer types.PeerID, cause error) error {
	g.refusedHandshakes.Add(1)
	if g.met != nil {
		g.met.HandshakeRefusals.WithLabelValues(dir.String()).Inc()
	}

	// 日志限流：同一节点一分钟内只告警一次
	now := time.Now()
	if last, ok := g.refused.Get(peer); !ok || now.Sub(last) >= refusalLogInterval {
		g.refused.Add(peer, now)
		logger.Warn("握手被信任门控拒绝",
			"peer", peer.ShortString(),
			"direction", dir.String(),
			"cause", cause)
	}
	return cause
}

// ============================================================================
//                              Stats
// ============================================================================

// GaterStats 门控统计
type GaterStats struct {
	RefusedDials      int64
	RefusedHandshakes int64
}

// Stats 返回门控统计信息
func (g *Gater) Stats() GaterStats {
	return GaterStats{
		RefusedDials:      g.refusedDials.Load(),
		RefusedHandshakes: g.refusedHandshakes.Load(),
	}
}
