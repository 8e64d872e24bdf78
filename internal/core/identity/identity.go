// Package identity 实现节点身份与认证策略
//
// 远程认证与非认证端点：
// 启用远程认证的端点只接受来自已知可信节点集合（合格节点注册表）
// 的连接，节点由其网络身份公钥标识。这不要求连接的另一端也启用
// 认证——只要对端的公钥在本端的可信集合中，双方即可互联。
package identity

import (
	"errors"

	"github.com/dep2p/go-valnet/pkg/lib/crypto"
	"github.com/dep2p/go-valnet/pkg/types"
)

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrNoAuthMode 未配置认证模式
	//
	// 属于编程/配置错误：在装配期立即失败，不做运行时重试。
	ErrNoAuthMode = errors.New("authentication mode not set")

	// ErrPeerIDRequired 相互认证模式必须显式提供 PeerID
	//
	// 验证人的 PeerID 是账户身份，独立于其网络密钥，无法派生。
	ErrPeerIDRequired = errors.New("mutual authentication requires an explicit peer id")
)

// HandshakeVersion 当前握手协议版本号
//
// 作为认证段附加在公告地址末尾（/handshake/<version>）。
const HandshakeVersion uint8 = 1

// ============================================================================
//                              认证模式
// ============================================================================

// Mode 认证模式种类
type Mode int

const (
	// ModeServerOnly 服务端单向认证
	//
	// 入站、出站均使用 Noise-IK 加密，但只有拨号方认证监听方：
	// 拨号方固定期望的远端公钥，监听方接受任意入站公钥。
	// 用于非验证节点（全节点）。
	ModeServerOnly Mode = iota + 1

	// ModeMutual 相互认证
	//
	// 拨号与接受均要求远端公钥存在于合格节点注册表中。
	// 用于验证人节点。
	ModeMutual
)

// String 返回模式的字符串表示
func (m Mode) String() string {
	switch m {
	case ModeServerOnly:
		return "server_only"
	case ModeMutual:
		return "mutual"
	default:
		return "unset"
	}
}

// AuthMode 节点的认证模式及本地静态身份私钥
//
// 节点实例的整个生命周期内有且只有一个认证模式，
// 不重启进程无法更换。零值表示未设置。
type AuthMode struct {
	mode Mode
	priv crypto.PrivateKey
}

// ServerOnly 创建服务端单向认证模式
func ServerOnly(priv crypto.PrivateKey) AuthMode {
	return AuthMode{mode: ModeServerOnly, priv: priv}
}

// Mutual 创建相互认证模式
func Mutual(priv crypto.PrivateKey) AuthMode {
	return AuthMode{mode: ModeMutual, priv: priv}
}

// IsSet 检查认证模式是否已设置
func (a AuthMode) IsSet() bool {
	return a.mode != 0
}

// Kind 返回模式种类
func (a AuthMode) Kind() Mode {
	return a.mode
}

// IsMutual 是否为相互认证模式
func (a AuthMode) IsMutual() bool {
	return a.mode == ModeMutual
}

// PrivateKey 返回本地静态身份私钥
func (a AuthMode) PrivateKey() crypto.PrivateKey {
	return a.priv
}

// PublicKey 返回本地身份公钥
//
// 所有认证模式都基于 Noise 静态密钥，因此公钥派生对模式透明，
// 且是确定性的。
func (a AuthMode) PublicKey() crypto.PublicKey {
	return a.priv.PublicKey()
}

// ============================================================================
//                              本地身份解析
// ============================================================================

// ResolvePeerID 解析节点自身的 PeerID
//
// 规则：
//   - ServerOnly 且未显式配置 PeerID：从身份公钥派生
//     （自标识全节点模式，派生纯函数、跨进程确定）。
//   - 其余情况使用调用方提供的 PeerID；
//     相互认证模式下缺失 PeerID 返回 ErrPeerIDRequired。
func ResolvePeerID(mode AuthMode, configured types.PeerID) (types.PeerID, error) {
	if !mode.IsSet() {
		return types.EmptyPeerID, ErrNoAuthMode
	}

	if configured.IsEmpty() {
		if mode.IsMutual() {
			return types.EmptyPeerID, ErrPeerIDRequired
		}
		return crypto.PeerIDFromPublicKey(mode.PublicKey()), nil
	}
	return configured, nil
}
