// Package types 定义 valnet 的基础类型
//
// 这是整个系统的最底层包，不依赖任何其他 valnet 内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据：
//
//   - PeerID: 网络参与者的唯一标识（由身份公钥派生或由调用方提供）
//   - NetworkAddress: 多段式网络地址（网络层 + 传输层 + 可选认证段）
//   - ConnectionNotification: 连接网关发出的连接/断开通知
//   - ProtocolID / RoleType / QueueStyle: 协议与装配期的枚举类型
package types
