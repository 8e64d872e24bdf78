package types

// ============================================================================
//                              连接事件
// ============================================================================

// ConnectionEvent 连接事件类型
type ConnectionEvent int

const (
	// EventConnected 连接建立（握手完成后）
	EventConnected ConnectionEvent = iota

	// EventDisconnected 连接断开（含从未建立成功的拨号失败）
	EventDisconnected
)

// String 返回事件的字符串表示
func (e ConnectionEvent) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ConnectionNotification 连接网关发出的连接通知
//
// 同一节点时间线上的通知按网关观察到的顺序投递
// （connected 先于其后的 disconnected）；跨节点不保证顺序。
type ConnectionNotification struct {
	// PeerID 远端节点标识
	PeerID PeerID

	// Addr 本次连接使用的地址（断开通知中可能为空）
	Addr NetworkAddress

	// Event 事件类型
	Event ConnectionEvent
}

// ============================================================================
//                              连接方向
// ============================================================================

// Direction 连接方向
type Direction int

const (
	// DirInbound 入站连接（对端拨号）
	DirInbound Direction = iota

	// DirOutbound 出站连接（本端拨号）
	DirOutbound
)

// String 返回方向的字符串表示
func (d Direction) String() string {
	switch d {
	case DirInbound:
		return "inbound"
	case DirOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              通道溢出策略
// ============================================================================

// QueueStyle 有界通道的溢出策略
//
// 在装配期按通道配置，启动后不可更改。
type QueueStyle int

const (
	// QueueDropOldest 通道满时丢弃最旧的元素，接纳新元素
	QueueDropOldest QueueStyle = iota

	// QueueReject 通道满时拒绝新元素
	QueueReject
)

// String 返回策略的字符串表示
func (q QueueStyle) String() string {
	switch q {
	case QueueDropOldest:
		return "drop_oldest"
	case QueueReject:
		return "reject"
	default:
		return "unknown"
	}
}
