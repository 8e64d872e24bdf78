package discovery

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"

	"github.com/dep2p/go-valnet/pkg/types"
)

// ============================================================================
//                              地址公告
// ============================================================================

// 公告校验错误
var (
	// ErrBadSignature 公告签名校验失败
	ErrBadSignature = errors.New("discovery: invalid note signature")

	// ErrUnknownSigner 签名者不在合格节点注册表中
	ErrUnknownSigner = errors.New("discovery: signer not eligible")

	// ErrStaleNote 公告纪元不比已存储的新
	ErrStaleNote = errors.New("discovery: stale note epoch")
)

// Note 自身地址公告
//
// 节点对自己当前可达地址的签名声明。Epoch 单调递增，
// 接收方只接受比已存储纪元更新的公告（防重放与乱序到达）。
type Note struct {
	// PeerID 公告所属节点
	PeerID types.PeerID

	// Addrs 声明的可达地址，按优先级排列
	Addrs []types.NetworkAddress

	// Epoch 公告纪元，每次地址变更递增
	Epoch uint64

	// Signature 对摘要的 Ed25519 签名
	Signature []byte
}

// digest 构造被签名的字节串
//
// 布局: peer id || epoch(大端 8 字节) || 逐个地址（长度前缀）。
func (n Note) digest() []byte {
	size := len(n.PeerID) + 8
	for _, addr := range n.Addrs {
		size += 4 + len(addr)
	}

	buf := make([]byte, 0, size)
	buf = append(buf, n.PeerID.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, n.Epoch)
	for _, addr := range n.Addrs {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(addr)))
		buf = append(buf, addr...)
	}
	return buf
}

// Sign 用节点签名私钥签署公告
func (n *Note) Sign(priv ed25519.PrivateKey) {
	n.Signature = ed25519.Sign(priv, n.digest())
}

// Verify 用节点签名公钥校验公告
func (n Note) Verify(pub ed25519.PublicKey) error {
	if len(pub) != ed25519.PublicKeySize {
		return ErrBadSignature
	}
	if !ed25519.Verify(pub, n.digest(), n.Signature) {
		return ErrBadSignature
	}
	return nil
}
