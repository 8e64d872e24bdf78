// Package connectivity 实现连接调和引擎
//
// 连接管理器负责让节点"当且仅当对端合格时保持连接"：
// 持续比较期望连接集合与实际连接集合，向连接网关发出
// 拨号/断开命令。初始的合格节点列表在装配期给出，
// 成员变更通过管理请求在线更新。
//
// 引擎是单个逻辑控制循环（除共享注册表外无内部锁），
// 由三类事件源驱动并按到达顺序合并：
//  1. 周期 tick —— 触发完整调和 pass
//  2. 网关连接通知 —— 更新实际状态视图
//  3. 管理请求 —— 在线成员更新与可观测性查询
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-valnet/internal/core/gateway"
	"github.com/dep2p/go-valnet/internal/core/metrics"
	"github.com/dep2p/go-valnet/internal/core/trust"
	"github.com/dep2p/go-valnet/pkg/lib/crypto"
	"github.com/dep2p/go-valnet/pkg/lib/log"
	"github.com/dep2p/go-valnet/pkg/types"
)

var logger = log.Logger("core/connectivity")

// ============================================================================
//                              连接记录
// ============================================================================

// connState 连接记录状态
type connState int

const (
	stateNotConnected connState = iota
	stateDialing
	stateConnected
)

// String 返回状态的字符串表示
func (s connState) String() string {
	switch s {
	case stateNotConnected:
		return "not_connected"
	case stateDialing:
		return "dialing"
	case stateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// connRecord 单个节点的连接记录
//
// 在首个发现该节点处于期望集合的调和 pass 中懒创建；
// 状态迁移只由 tick 和网关通知驱动；
// 节点离开期望集合后销毁。
type connRecord struct {
	state connState

	// addr 最近一次拨号/连接使用的地址
	addr types.NetworkAddress

	// 退避游标：下次允许重试的时间与当前延迟量级
	nextDialAt time.Time
	curDelay   time.Duration

	// attempt 拨号尝试序号（仅用于日志；陈旧完成由状态机本身去重）
	attempt uint64
}

// ============================================================================
//                              Manager 实现
// ============================================================================

// Manager 连接调和引擎
type Manager struct {
	cfg   Config
	clk   clock.Clock
	local types.PeerID

	// 共享的合格节点注册表（与握手校验路径共享同一引用）
	registry *trust.Registry

	// 种子地址簿：仅用于引导初始拨号目标，进程生命周期内静态，
	// 调和永不移除（作为兜底地址簿）
	seeds map[types.PeerID][]types.NetworkAddress

	// 发现到的地址（UpdateAddresses 整体替换）
	addrs map[types.PeerID][]types.NetworkAddress

	sender   gateway.RequestSender
	notifs   <-chan types.ConnectionNotification
	requests chan Request

	records map[types.PeerID]*connRecord

	met *metrics.Connectivity
	wg  sync.WaitGroup
}

// New 创建连接调和引擎
//
// clk 为 nil 时使用真实时钟；met 为 nil 时创建未注册的指标。
func New(
	cfg Config,
	clk clock.Clock,
	local types.PeerID,
	registry *trust.Registry,
	seeds map[types.PeerID][]types.NetworkAddress,
	sender gateway.RequestSender,
	notifs <-chan types.ConnectionNotification,
	met *metrics.Connectivity,
) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	if met == nil {
		met = metrics.NewConnectivity(nil)
	}

	seedsCopy := make(map[types.PeerID][]types.NetworkAddress, len(seeds))
	for id, addrList := range seeds {
		seedsCopy[id] = append([]types.NetworkAddress(nil), addrList...)
	}

	return &Manager{
		cfg:      cfg,
		clk:      clk,
		local:    local,
		registry: registry,
		seeds:    seedsCopy,
		addrs:    make(map[types.PeerID][]types.NetworkAddress),
		sender:   sender,
		notifs:   notifs,
		requests: make(chan Request, cfg.RequestBuffer),
		records:  make(map[types.PeerID]*connRecord),
		met:      met,
	}, nil
}

// Requests 返回管理请求通道
//
// 地址发现等协议通过该通道提交 UpdateAddresses。
func (m *Manager) Requests() chan<- Request {
	return m.requests
}

// UpdateEligibleNodes 提交合格节点集合更新（阻塞直至入队或 ctx 取消）
func (m *Manager) UpdateEligibleNodes(ctx context.Context, nodes map[types.PeerID]crypto.NetworkPublicKeys) error {
	select {
	case m.requests <- UpdateEligibleNodes{Nodes: nodes}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DialQueueSize 查询当前处于拨号中状态的节点数
func (m *Manager) DialQueueSize(ctx context.Context) (int, error) {
	resp := make(chan int, 1)
	select {
	case m.requests <- GetDialQueueSize{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case n := <-resp:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Start 启动调和循环
//
// 通过取消 ctx 停机：在途拨号不会被主动取消，它们自行完成或
// 失败，结果由已停止的管理器丢弃。
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.loop(ctx)
	}()
}

// Wait 等待调和循环退出
func (m *Manager) Wait() {
	m.wg.Wait()
}

// loop 主循环：多事件源等待，绝不忙轮询
func (m *Manager) loop(ctx context.Context) {
	ticker := m.clk.Ticker(m.cfg.CheckInterval)
	defer ticker.Stop()

	logger.Info("连接调和引擎已启动",
		"check_interval", m.cfg.CheckInterval,
		"backoff_base", m.cfg.BackoffBase,
		"max_delay", m.cfg.MaxConnectionDelay)

	// 启动即做一次调和，不等首个 tick
	m.checkConnectivity()

	for {
		select {
		case <-ctx.Done():
			logger.Info("连接调和引擎已停止")
			return

		case <-ticker.C:
			m.checkConnectivity()

		case notif, ok := <-m.notifs:
			if !ok {
				logger.Info("通知通道关闭，调和引擎退出")
				return
			}
			m.handleNotification(notif)

		case req := <-m.requests:
			m.handleRequest(req)
		}
	}
}

// ============================================================================
//                              调和 pass
// ============================================================================

// checkConnectivity 执行一次完整的调和 pass
//
// 基于当前注册表/种子快照重新计算期望集合：
//   - 期望且未连接且退避已过的节点 → 发出拨号命令
//   - 已连接但已失格的节点 → 发出断开命令
//   - 拨号中的记录保持不动（去重不变式：同一节点在途拨号
//     未完成前绝不发出第二个拨号命令）
//
// 拨号侧要求已知地址，驱逐侧只看资格：合格但地址未知的节点
// （先被动入站、地址有待发现）保持连接，只是暂不主动拨号。
func (m *Manager) checkConnectivity() {
	now := m.clk.Now()
	desired := m.desiredPeers()

	for peer, candidates := range desired {
		rec, ok := m.records[peer]
		if !ok {
			rec = &connRecord{curDelay: m.cfg.BackoffBase}
			m.records[peer] = rec
		}
		if rec.state != stateNotConnected || now.Before(rec.nextDialAt) {
			continue
		}

		addr := candidates[0]
		if err := m.sender.TrySend(gateway.DialRequest{PeerID: peer, Addr: addr}); err != nil {
			// 网关过载：跳过本次，下个 tick 重试，绝不阻塞循环
			m.met.CommandsDropped.Inc()
			logger.Debug("命令通道已满，推迟拨号", "peer", peer.ShortString())
			continue
		}

		rec.state = stateDialing
		rec.addr = addr
		rec.attempt++
		rec.nextDialAt = now.Add(rec.curDelay)
		rec.curDelay = nextDelay(rec.curDelay, m.cfg.MaxConnectionDelay)
		m.met.DialsIssued.Inc()
		logger.Debug("发出拨号命令",
			"peer", peer.ShortString(),
			"addr", addr.String(),
			"attempt", rec.attempt)
	}

	for peer, rec := range m.records {
		if m.isDesired(peer) {
			continue
		}
		switch rec.state {
		case stateConnected:
			if err := m.sender.TrySend(gateway.DisconnectRequest{PeerID: peer}); err != nil {
				m.met.CommandsDropped.Inc()
				continue
			}
			m.met.DisconnectsIssued.Inc()
			logger.Info("断开已失格节点", "peer", peer.ShortString())
			rec.state = stateNotConnected

		case stateNotConnected:
			delete(m.records, peer)

			// stateDialing: 等待在途拨号结果到达后再处理
		}
	}

	m.updateGauges()
}

// nextDelay 退避延迟指数增长，封顶于 max
func nextDelay(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

// ============================================================================
//                              网关通知处理
// ============================================================================

func (m *Manager) handleNotification(notif types.ConnectionNotification) {
	desired := m.isDesired(notif.PeerID)

	switch notif.Event {
	case types.EventConnected:
		rec, ok := m.records[notif.PeerID]
		if !ok {
			// 入站连接或与记录清理竞态
			rec = &connRecord{curDelay: m.cfg.BackoffBase}
			m.records[notif.PeerID] = rec
		}
		rec.state = stateConnected
		if !notif.Addr.IsEmpty() {
			rec.addr = notif.Addr
		}

		if !desired {
			// 与资格移除竞态：立即断开
			if err := m.sender.TrySend(gateway.DisconnectRequest{PeerID: notif.PeerID}); err != nil {
				m.met.CommandsDropped.Inc()
				// 下个调和 pass 重试断开
			} else {
				m.met.DisconnectsIssued.Inc()
				rec.state = stateNotConnected
			}
			logger.Debug("断开非期望节点", "peer", notif.PeerID.ShortString())
			break
		}

		// 连接成功：退避归位到基础延迟，未来断开会被尽快重拨
		rec.curDelay = m.cfg.BackoffBase
		rec.nextDialAt = time.Time{}
		logger.Debug("节点已连接", "peer", notif.PeerID.ShortString())

	case types.EventDisconnected:
		rec, ok := m.records[notif.PeerID]
		if !ok {
			break
		}
		if !desired {
			delete(m.records, notif.PeerID)
			break
		}
		// 退避游标保持原样：连续失败时延迟持续增长。
		// "从未连上"与"连上后断开"同等对待，不区分失败原因。
		rec.state = stateNotConnected
		logger.Debug("节点已断开",
			"peer", notif.PeerID.ShortString(),
			"next_dial_at", rec.nextDialAt)
	}

	m.updateGauges()
}

// ============================================================================
//                              管理请求处理
// ============================================================================

func (m *Manager) handleRequest(req Request) {
	switch r := req.(type) {
	case UpdateEligibleNodes:
		old := m.registry.Snapshot()
		m.registry.Replace(r.Nodes)

		// 新晋合格节点：退避归位，尽快拨号
		for peer := range r.Nodes {
			if _, was := old[peer]; was {
				continue
			}
			if rec, ok := m.records[peer]; ok && rec.state == stateNotConnected {
				rec.curDelay = m.cfg.BackoffBase
				rec.nextDialAt = time.Time{}
			}
		}
		logger.Info("合格节点集合已更新",
			"eligible", len(r.Nodes),
			"previous", len(old))

	case UpdateAddresses:
		if len(r.Addrs) == 0 {
			delete(m.addrs, r.PeerID)
		} else {
			m.addrs[r.PeerID] = append([]types.NetworkAddress(nil), r.Addrs...)
		}
		logger.Debug("节点地址已更新",
			"peer", r.PeerID.ShortString(),
			"addrs", len(r.Addrs))

	case GetDialQueueSize:
		n := 0
		for _, rec := range m.records {
			if rec.state == stateDialing {
				n++
			}
		}
		select {
		case r.Resp <- n:
		default:
			// 无人接收，丢弃结果
		}
	}
}

// ============================================================================
//                              期望集合计算
// ============================================================================

// desiredPeers 重新计算可拨号的期望节点集合
//
// 拨号目标 = 注册表键（有已知地址时）∪ 种子节点键，
// 每个节点映射到非空候选地址集合；发现到的地址优先于种子地址。
// 本地节点自身永远不在期望集合中。资格本身不要求已知地址，
// 该判定见 isDesired。
func (m *Manager) desiredPeers() map[types.PeerID][]types.NetworkAddress {
	eligible := m.registry.Snapshot()
	desired := make(map[types.PeerID][]types.NetworkAddress, len(eligible)+len(m.seeds))

	for peer := range eligible {
		if peer == m.local {
			continue
		}
		if candidates := m.knownAddrs(peer); len(candidates) > 0 {
			desired[peer] = candidates
		}
	}
	for peer := range m.seeds {
		if peer == m.local {
			continue
		}
		if _, ok := desired[peer]; ok {
			continue
		}
		if candidates := m.knownAddrs(peer); len(candidates) > 0 {
			desired[peer] = candidates
		}
	}
	return desired
}

// knownAddrs 返回节点的候选地址：发现地址优先，种子地址兜底
func (m *Manager) knownAddrs(peer types.PeerID) []types.NetworkAddress {
	if addrs := m.addrs[peer]; len(addrs) > 0 {
		return addrs
	}
	return m.seeds[peer]
}

// isDesired 检查节点当前是否合格（注册表 ∪ 种子）
//
// 与拨号侧不同，不要求已知地址；驱逐与通知处理共用该判定。
func (m *Manager) isDesired(peer types.PeerID) bool {
	if peer == m.local {
		return false
	}
	if _, ok := m.seeds[peer]; ok {
		return true
	}
	return m.registry.Contains(peer)
}

func (m *Manager) updateGauges() {
	connected, dialing := 0, 0
	for _, rec := range m.records {
		switch rec.state {
		case stateConnected:
			connected++
		case stateDialing:
			dialing++
		}
	}
	m.met.ConnectedPeers.Set(float64(connected))
	m.met.DialQueueDepth.Set(float64(dialing))
}
