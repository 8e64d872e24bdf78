// Package valnet 实现验证者网络的连接核心
//
// valnet 负责回答一个问题：本节点应当与哪些对端保持经认证的
// 网络连接，并如何把实际连接状态持续收敛到这个目标。
//
// 核心组件：
//   - 身份与认证策略（相互认证 / 服务端单向认证，x25519 静态密钥）
//   - 合格节点注册表（支持在线成员变更的共享事实来源）
//   - 连接调和引擎（拨号/断开决策、指数退避、去重）
//   - 连接网关契约（命令通道 + 连接通知扇出）
//   - 健康检查与地址发现协议
//
// 使用示例：
//
//	priv, _, _ := crypto.GenerateKeyPair(nil)
//	builder := valnet.NewBuilder(peerID, types.RoleValidator,
//	    "/ip4/0.0.0.0/tcp/9000", nil)
//	builder.SetAuthenticationMode(identity.Mutual(priv))
//	builder.SetEligiblePeers(validatorSet)
//	builder.SetSeedPeers(seeds)
//	if err := builder.AddConnectivityManager(); err != nil { ... }
//	network, err := builder.Build(ctx)
//	defer network.Close()
package valnet
