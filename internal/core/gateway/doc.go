// Package gateway 定义连接网关的契约面
//
// 连接网关拥有活动连接：执行拨号/断开命令、在传输握手边界执行
// 认证策略、并把连接/断开通知广播给装配期注册的全部订阅者。
//
// 本包提供：
//   - 命令面：ConnectionRequest（Dial/Disconnect）与不阻塞的 RequestSender
//   - 通知面：Notifier，把每个事件克隆投递到每个订阅通道
//   - Memory：进程内网关实现（内存传输部署与测试用）；
//     基于套接字的网关在进程外实现同一契约
//
// 同一节点身份的重复并发连接（双方同时互拨）在网关层归并为
// 单个逻辑连接，连接管理器永远不会同时观察到两条。
package gateway
