package crypto

import (
	"crypto/ed25519"
)

// NetworkPublicKeys 节点在握手时用于被认证的公钥集合
//
// IdentityKey 是 Noise-IK 握手的静态身份公钥；
// SigningKey 是辅助签名公钥（用于地址公告等应用层签名）。
type NetworkPublicKeys struct {
	// IdentityKey x25519 身份公钥
	IdentityKey PublicKey

	// SigningKey ed25519 签名公钥（可为空）
	SigningKey ed25519.PublicKey
}

// Equal 比较两个公钥集合是否相等
func (k NetworkPublicKeys) Equal(other NetworkPublicKeys) bool {
	return k.IdentityKey == other.IdentityKey &&
		ed25519.PublicKey(k.SigningKey).Equal(other.SigningKey)
}
