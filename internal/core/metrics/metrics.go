// Package metrics 提供 valnet 的可观测性计数器
//
// 瞬态连接失败、信任违规和命令丢弃都不向上层传播错误，
// 只通过本包的计数器暴露（自愈式设计，见错误处理约定）。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "valnet"

// ============================================================================
//                              连接管理指标
// ============================================================================

// Connectivity 连接管理器指标
type Connectivity struct {
	// DialsIssued 已发出的拨号命令总数
	DialsIssued prometheus.Counter

	// DisconnectsIssued 已发出的断开命令总数
	DisconnectsIssued prometheus.Counter

	// CommandsDropped 因命令通道满而跳过的命令总数（下个 tick 重试）
	CommandsDropped prometheus.Counter

	// ConnectedPeers 当前处于已连接状态的节点数
	ConnectedPeers prometheus.Gauge

	// DialQueueDepth 当前处于拨号中状态的节点数
	DialQueueDepth prometheus.Gauge
}

// NewConnectivity 创建连接管理器指标
//
// reg 为 nil 时指标不注册（测试场景），计数仍然可用。
func NewConnectivity(reg prometheus.Registerer) *Connectivity {
	m := &Connectivity{
		DialsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connectivity",
			Name:      "dials_issued_total",
			Help:      "Total number of dial commands issued to the connection gateway.",
		}),
		DisconnectsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connectivity",
			Name:      "disconnects_issued_total",
			Help:      "Total number of disconnect commands issued to the connection gateway.",
		}),
		CommandsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connectivity",
			Name:      "commands_dropped_total",
			Help:      "Total number of commands skipped because the gateway channel was full.",
		}),
		ConnectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connectivity",
			Name:      "connected_peers",
			Help:      "Number of peers currently in the connected state.",
		}),
		DialQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connectivity",
			Name:      "dial_queue_depth",
			Help:      "Number of peers currently in the dialing state.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.DialsIssued,
			m.DisconnectsIssued,
			m.CommandsDropped,
			m.ConnectedPeers,
			m.DialQueueDepth,
		)
	}
	return m
}

// ============================================================================
//                              信任边界指标
// ============================================================================

// Trust 握手信任边界指标
type Trust struct {
	// HandshakeRefusals 被信任门控拒绝的握手数（按方向统计）
	HandshakeRefusals *prometheus.CounterVec

	// DialRefusals 拨号前即被拒绝的目标数（目标不在注册表中）
	DialRefusals prometheus.Counter
}

// NewTrust 创建信任边界指标
func NewTrust(reg prometheus.Registerer) *Trust {
	m := &Trust{
		HandshakeRefusals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trust",
			Name:      "handshake_refusals_total",
			Help:      "Total number of handshakes refused at the trust boundary.",
		}, []string{"direction"}),
		DialRefusals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trust",
			Name:      "dial_refusals_total",
			Help:      "Total number of dials refused before handshake (peer not eligible).",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.HandshakeRefusals, m.DialRefusals)
	}
	return m
}
