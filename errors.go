package valnet

import (
	"errors"

	"github.com/dep2p/go-valnet/internal/core/identity"
	"github.com/dep2p/go-valnet/pkg/types"
)

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrNoAuthMode 未配置认证模式
	//
	// 装配期致命错误：没有认证模式就没有本地身份。
	ErrNoAuthMode = identity.ErrNoAuthMode

	// ErrPeerIDRequired 相互认证模式必须显式提供 PeerID
	ErrPeerIDRequired = identity.ErrPeerIDRequired

	// ErrUnsupportedScheme 不支持的地址方案
	ErrUnsupportedScheme = types.ErrUnsupportedScheme

	// ErrConnectivityRequired 该组件依赖连接调和引擎
	//
	// 地址发现学到的地址没有消费者时毫无意义，装配期直接失败
	// 而不是静默降级。
	ErrConnectivityRequired = errors.New("valnet: connectivity manager required")

	// ErrAlreadyBuilt 构建器已完成构建
	//
	// 所有配置方法必须在 Build 之前调用。
	ErrAlreadyBuilt = errors.New("valnet: builder already built")

	// ErrSigningKeyRequired 地址发现需要 Ed25519 签名私钥
	ErrSigningKeyRequired = errors.New("valnet: signing key required for discovery")

	// ErrPeerUnreachable 对端当前不可达
	ErrPeerUnreachable = errors.New("valnet: peer unreachable")
)
