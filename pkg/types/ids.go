package types

import (
	"errors"

	"github.com/mr-tron/base58"
)

// ============================================================================
//                              PeerID - 节点标识
// ============================================================================

// PeerID 网络参与者的唯一标识符
//
// 验证人节点的 PeerID 由账户身份给出（与其网络密钥无关）；
// 全节点的 PeerID 由身份公钥派生（见 pkg/lib/crypto.PeerIDFromPublicKey）。
// 相等性与哈希均基于身份字节。
//
// 外部表示格式：
//   - String(): Base58 编码（用户可读、可分享）
//   - ShortString(): Base58 前缀（日志简短标识）
type PeerID [32]byte

// EmptyPeerID 空节点标识
var EmptyPeerID PeerID

// ErrInvalidPeerID 无效的 PeerID 错误
var ErrInvalidPeerID = errors.New("invalid peer id: must be 32-byte Base58")

// String 返回 PeerID 的 Base58 字符串表示
func (id PeerID) String() string {
	if id.IsEmpty() {
		return ""
	}
	return base58.Encode(id[:])
}

// ShortString 返回 PeerID 的短字符串表示
//
// 格式：Base58 前 8 个字符，用于日志中的简短标识。
func (id PeerID) ShortString() string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// Bytes 返回 PeerID 的字节切片
func (id PeerID) Bytes() []byte {
	return id[:]
}

// Equal 比较两个 PeerID 是否相等
func (id PeerID) Equal(other PeerID) bool {
	return id == other
}

// IsEmpty 检查 PeerID 是否为空
func (id PeerID) IsEmpty() bool {
	return id == EmptyPeerID
}

// PeerIDFromBytes 从字节切片创建 PeerID
func PeerIDFromBytes(b []byte) (PeerID, error) {
	if len(b) != 32 {
		return EmptyPeerID, ErrInvalidPeerID
	}
	var id PeerID
	copy(id[:], b)
	return id, nil
}

// ParsePeerID 从 Base58 字符串解析 PeerID
//
// 仅支持 Base58 编码（用于用户输入和配置）。
func ParsePeerID(s string) (PeerID, error) {
	if s == "" {
		return EmptyPeerID, ErrInvalidPeerID
	}

	b, err := base58.Decode(s)
	if err != nil {
		return EmptyPeerID, ErrInvalidPeerID
	}
	return PeerIDFromBytes(b)
}

// ============================================================================
//                              ProtocolID - 协议标识
// ============================================================================

// ProtocolID 应用层协议标识符
// 格式: /name/version，如 /valnet/health/1.0
type ProtocolID string

// String 返回协议 ID 字符串
func (p ProtocolID) String() string {
	return string(p)
}

// ============================================================================
//                              RoleType - 节点角色
// ============================================================================

// RoleType 节点在网络中的角色
type RoleType int

const (
	// RoleValidator 验证人节点（相互认证）
	RoleValidator RoleType = iota

	// RoleFullNode 全节点（服务端单向认证）
	RoleFullNode
)

// String 返回角色的字符串表示
func (r RoleType) String() string {
	switch r {
	case RoleValidator:
		return "validator"
	case RoleFullNode:
		return "full_node"
	default:
		return "unknown"
	}
}
