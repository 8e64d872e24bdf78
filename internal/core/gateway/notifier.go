package gateway

import (
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-valnet/pkg/lib/log"
	"github.com/dep2p/go-valnet/pkg/types"
)

var logger = log.Logger("core/gateway")

// ============================================================================
//                              Notifier - 连接通知扇出
// ============================================================================

// Notifier 连接通知扇出器
//
// 每个发出的通知克隆投递到装配期注册的每个订阅通道——
// 连接管理器和应用层协议（健康检查、地址发现）各自独立消费
// 全量事件，任何订阅者都不能直接修改网关拥有的连接状态。
//
// 投递由网关的单个 goroutine 执行，因此单个订阅者内
// 同一节点的事件顺序与网关观察顺序一致。
// 慢订阅者按其通道的溢出策略丢弃事件；退订是静默的，不算错误。
type Notifier struct {
	mu     sync.Mutex
	subs   []*subscriber
	closed bool
}

// subscriber 单个订阅者
type subscriber struct {
	ch      chan types.ConnectionNotification
	style   types.QueueStyle
	dropped atomic.Int64
}

// NewNotifier 创建通知扇出器
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe 注册一个订阅通道
//
// buf 为通道容量，style 为溢出策略；两者在装配期固定，
// 启动后不可调整。
func (n *Notifier) Subscribe(buf int, style types.QueueStyle) <-chan types.ConnectionNotification {
	if buf <= 0 {
		buf = 1
	}
	sub := &subscriber{
		ch:    make(chan types.ConnectionNotification, buf),
		style: style,
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		// 已关闭的扇出器返回已关闭通道，订阅者自然退出
		close(sub.ch)
		return sub.ch
	}
	n.subs = append(n.subs, sub)
	return sub.ch
}

// Unsubscribe 静默移除订阅通道并关闭它
func (n *Notifier) Unsubscribe(ch <-chan types.ConnectionNotification) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, sub := range n.subs {
		if sub.ch == ch {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// Publish 把通知投递到每个订阅通道
func (n *Notifier) Publish(notif types.ConnectionNotification) {
	n.mu.Lock()
	subs := make([]*subscriber, len(n.subs))
	copy(subs, n.subs)
	closed := n.closed
	n.mu.Unlock()

	if closed {
		return
	}
	for _, sub := range subs {
		sub.deliver(notif)
	}
}

// deliver 按溢出策略投递到单个订阅者
func (s *subscriber) deliver(notif types.ConnectionNotification) {
	select {
	case s.ch <- notif:
		return
	default:
	}

	if s.style == types.QueueDropOldest {
		// 腾出一个位置再尝试一次
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- notif:
			return
		default:
		}
	}

	if s.dropped.Add(1)%64 == 1 {
		logger.Warn("慢订阅者丢弃连接通知",
			"peer", notif.PeerID.ShortString(),
			"event", notif.Event.String(),
			"dropped", s.dropped.Load())
	}
}

// Close 关闭扇出器及全部订阅通道
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for _, sub := range n.subs {
		close(sub.ch)
	}
	n.subs = nil
}
