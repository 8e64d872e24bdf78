package crypto

import (
	sha256 "github.com/minio/sha256-simd"

	"github.com/dep2p/go-valnet/pkg/types"
)

// PeerIDFromPublicKey 从身份公钥派生 PeerID
//
// 派生算法：SHA256(公钥字节)，纯函数且确定性——
// 相同公钥在任何进程、任何时间派生出相同的 PeerID，
// 对端和工具链可以独立计算。
//
// 用于自标识的全节点（ServerOnly 模式且未显式配置 PeerID）。
// 验证人的 PeerID 由账户身份给出，不经过此派生。
func PeerIDFromPublicKey(pub PublicKey) types.PeerID {
	return types.PeerID(sha256.Sum256(pub[:]))
}
