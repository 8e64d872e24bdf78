package crypto

import (
	"crypto/rand"
	"errors"
	"io"

	"github.com/flynn/noise"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/curve25519"
)

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrInvalidKeyLength 密钥长度错误
	ErrInvalidKeyLength = errors.New("invalid key length: must be 32 bytes")

	// ErrInvalidKeyEncoding 无效的密钥编码
	ErrInvalidKeyEncoding = errors.New("invalid key encoding: must be Base58")
)

// ============================================================================
//                              x25519 密钥
// ============================================================================

// PublicKey x25519 身份公钥
type PublicKey [32]byte

// PrivateKey x25519 身份私钥
type PrivateKey [32]byte

// GenerateKeyPair 生成 x25519 身份密钥对
//
// rng 为 nil 时使用 crypto/rand。
// 密钥对与 Noise-IK 握手使用的静态密钥同构。
func GenerateKeyPair(rng io.Reader) (PrivateKey, PublicKey, error) {
	if rng == nil {
		rng = rand.Reader
	}
	dh, err := noise.DH25519.GenerateKeypair(rng)
	if err != nil {
		return PrivateKey{}, PublicKey{}, err
	}

	var priv PrivateKey
	var pub PublicKey
	copy(priv[:], dh.Private)
	copy(pub[:], dh.Public)
	return priv, pub, nil
}

// PublicKey 从私钥确定性地派生公钥
func (k PrivateKey) PublicKey() PublicKey {
	pub, err := curve25519.X25519(k[:], curve25519.Basepoint)
	if err != nil {
		// 私钥为全零等退化情形，返回零值公钥
		return PublicKey{}
	}
	var out PublicKey
	copy(out[:], pub)
	return out
}

// Bytes 返回公钥的字节切片
func (k PublicKey) Bytes() []byte {
	return k[:]
}

// String 返回公钥的 Base58 字符串表示
func (k PublicKey) String() string {
	return base58.Encode(k[:])
}

// Equal 比较两个公钥是否相等
func (k PublicKey) Equal(other PublicKey) bool {
	return k == other
}

// IsZero 检查公钥是否为零值
func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

// PublicKeyFromBytes 从字节切片创建公钥
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	if len(b) != 32 {
		return PublicKey{}, ErrInvalidKeyLength
	}
	var k PublicKey
	copy(k[:], b)
	return k, nil
}

// ParsePublicKey 从 Base58 字符串解析公钥
func ParsePublicKey(s string) (PublicKey, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return PublicKey{}, ErrInvalidKeyEncoding
	}
	return PublicKeyFromBytes(b)
}
