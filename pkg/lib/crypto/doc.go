// Package crypto 提供 valnet 的身份密钥类型与 PeerID 派生
//
// 节点身份使用 x25519 密钥（Noise-IK 握手的静态密钥）。
// 本包只负责密钥的表示、生成与 PeerID 派生；
// 线上的握手密码学由连接网关在传输层完成，不在本包范围内。
package crypto
