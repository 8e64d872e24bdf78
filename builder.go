package valnet

import (
	"context"
	"crypto/ed25519"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-valnet/config"
	"github.com/dep2p/go-valnet/internal/core/connectivity"
	"github.com/dep2p/go-valnet/internal/core/gateway"
	"github.com/dep2p/go-valnet/internal/core/identity"
	"github.com/dep2p/go-valnet/internal/core/metrics"
	"github.com/dep2p/go-valnet/internal/core/trust"
	"github.com/dep2p/go-valnet/internal/protocol/discovery"
	"github.com/dep2p/go-valnet/internal/protocol/health"
	"github.com/dep2p/go-valnet/pkg/lib/crypto"
	"github.com/dep2p/go-valnet/pkg/lib/log"
	"github.com/dep2p/go-valnet/pkg/types"
)

var logger = log.Logger("valnet")

// ============================================================================
//                              Builder
// ============================================================================

// Builder 逐步组装一个网络实例
//
// 所有配置方法在 Build 之前调用；Build 整体校验配置、解析本地
// 身份、先启动连接网关再启动各协议执行体，返回 Network 句柄。
// 通道容量与订阅在装配期固定，启动后不可调整。
type Builder struct {
	cfg    *config.Config
	peerID types.PeerID
	role   types.RoleType
	listen string

	authMode   identity.AuthMode
	signKey    ed25519.PrivateKey
	advertised string

	seeds    map[types.PeerID][]types.NetworkAddress
	eligible map[types.PeerID]crypto.NetworkPublicKeys

	// 可注入的依赖（默认：真实时钟、进程内握手、网关连通性 ping）
	clk        clock.Clock
	registerer prometheus.Registerer
	handshake  gateway.HandshakeFunc
	ping       health.PingFunc
	broadcast  discovery.BroadcastFunc

	// 网关命令通道与通知扇出在 NewBuilder 即创建，
	// 协议处理器因此可以在 Build 之前拿到自己的端点
	gwReqs   chan gateway.ConnectionRequest
	notifier *gateway.Notifier

	// protocols 装配期注册的协议标识，决定哪些入站协议请求可路由
	protocols []types.ProtocolID

	withConnMgr bool
	withHealth  bool
	withGossip  bool

	built bool
}

// NewBuilder 创建网络构建器
//
// peerID 可为空：服务端单向认证模式下将从身份公钥派生。
// cfg 为 nil 时使用默认配置。
func NewBuilder(peerID types.PeerID, role types.RoleType, listenAddr string, cfg *config.Config) *Builder {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &Builder{
		cfg:      cfg,
		peerID:   peerID,
		role:     role,
		listen:   listenAddr,
		seeds:    make(map[types.PeerID][]types.NetworkAddress),
		eligible: make(map[types.PeerID]crypto.NetworkPublicKeys),
		gwReqs:   make(chan gateway.ConnectionRequest, cfg.Channels.GatewayBuffer),
		notifier: gateway.NewNotifier(),
	}
}

// ============================================================================
//                              配置方法
// ============================================================================

// SetAuthenticationMode 设置认证模式（必须且只能设置一次）
func (b *Builder) SetAuthenticationMode(mode identity.AuthMode) *Builder {
	b.authMode = mode
	return b
}

// SetSeedPeers 设置种子节点地址簿
//
// 种子地址是静态兜底地址簿，调和过程永不移除。
func (b *Builder) SetSeedPeers(seeds map[types.PeerID][]types.NetworkAddress) *Builder {
	b.seeds = seeds
	return b
}

// SetEligiblePeers 设置初始合格节点集合
//
// 之后的成员变更通过 Network.UpdateEligiblePeers 在线提交。
func (b *Builder) SetEligiblePeers(eligible map[types.PeerID]crypto.NetworkPublicKeys) *Builder {
	b.eligible = eligible
	return b
}

// SetAdvertisedAddress 设置对外公告地址
//
// 未设置时公告监听地址。Build 会在公告地址末尾附加认证段
// （本地身份公钥 + 握手版本）。
func (b *Builder) SetAdvertisedAddress(addr string) *Builder {
	b.advertised = addr
	return b
}

// SetSigningKey 设置 Ed25519 签名私钥（地址发现公告签名用）
func (b *Builder) SetSigningKey(key ed25519.PrivateKey) *Builder {
	b.signKey = key
	return b
}

// SetClock 注入时钟（测试用）
func (b *Builder) SetClock(clk clock.Clock) *Builder {
	b.clk = clk
	return b
}

// SetMetricsRegisterer 设置 prometheus 注册器
//
// 未设置时指标创建但不注册。
func (b *Builder) SetMetricsRegisterer(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// SetHandshakeFunc 注入出站握手函数（测试/自定义传输桥接用）
func (b *Builder) SetHandshakeFunc(fn gateway.HandshakeFunc) *Builder {
	b.handshake = fn
	return b
}

// SetPingFunc 注入健康检查 ping 函数
func (b *Builder) SetPingFunc(fn health.PingFunc) *Builder {
	b.ping = fn
	return b
}

// SetBroadcastFunc 注入地址公告广播函数
func (b *Builder) SetBroadcastFunc(fn discovery.BroadcastFunc) *Builder {
	b.broadcast = fn
	return b
}

// ============================================================================
//                              组件注册
// ============================================================================

// AddProtocolHandler 注册一个协议处理器
//
// 返回该处理器的连接通知接收端与网关命令发送端。
// 必须在 Build 之前调用。
func (b *Builder) AddProtocolHandler(protocols []types.ProtocolID, queueSize int, style types.QueueStyle) (<-chan types.ConnectionNotification, gateway.RequestSender, error) {
	if b.built {
		return nil, gateway.RequestSender{}, ErrAlreadyBuilt
	}
	logger.Debug("注册协议处理器",
		"protocols", len(protocols),
		"queue_size", queueSize)
	b.protocols = append(b.protocols, protocols...)
	ch := b.notifier.Subscribe(queueSize, style)
	return ch, gateway.NewRequestSender(b.gwReqs), nil
}

// AddConnectionEventListener 注册一个连接事件监听通道
//
// 使用配置的通知通道容量与溢出策略。
func (b *Builder) AddConnectionEventListener() (<-chan types.ConnectionNotification, error) {
	if b.built {
		return nil, ErrAlreadyBuilt
	}
	ch := b.notifier.Subscribe(b.cfg.Channels.NotificationBuffer, b.cfg.Channels.QueueStyle())
	return ch, nil
}

// AddConnectivityManager 启用连接调和引擎
func (b *Builder) AddConnectivityManager() error {
	if b.built {
		return ErrAlreadyBuilt
	}
	b.withConnMgr = true
	return nil
}

// AddConnectionMonitoring 启用连接健康检查
//
// 同时注册健康检查协议标识。
func (b *Builder) AddConnectionMonitoring() error {
	if b.built {
		return ErrAlreadyBuilt
	}
	b.withHealth = true
	b.protocols = append(b.protocols, health.ProtocolID)
	return nil
}

// AddGossipDiscovery 启用 gossip 地址发现
//
// 依赖连接调和引擎：学到的地址没有消费者时装配直接失败，
// 而不是静默丢弃。
func (b *Builder) AddGossipDiscovery() error {
	if b.built {
		return ErrAlreadyBuilt
	}
	if !b.withConnMgr {
		return ErrConnectivityRequired
	}
	b.withGossip = true
	b.protocols = append(b.protocols, discovery.ProtocolID)
	return nil
}

// ============================================================================
//                              Build
// ============================================================================

// Build 校验配置并组装网络实例
//
// 校验失败是装配期致命错误，不做降级。组件启动顺序：
// 先注册全部订阅，再启动连接网关，最后启动各协议执行体。
func (b *Builder) Build(ctx context.Context) (*Network, error) {
	if b.built {
		return nil, ErrAlreadyBuilt
	}
	b.built = true

	if !b.authMode.IsSet() {
		return nil, ErrNoAuthMode
	}
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}
	if b.withGossip && len(b.signKey) != ed25519.PrivateKeySize {
		return nil, ErrSigningKeyRequired
	}

	listen, err := types.ParseNetworkAddress(b.listen)
	if err != nil {
		return nil, err
	}

	local, err := identity.ResolvePeerID(b.authMode, b.peerID)
	if err != nil {
		return nil, err
	}

	advertised := listen
	if b.advertised != "" {
		advertised, err = types.ParseNetworkAddress(b.advertised)
		if err != nil {
			return nil, err
		}
	}
	pub := b.authMode.PublicKey()
	advertised = advertised.AppendAuthSegments(pub.Bytes(), identity.HandshakeVersion)

	// ------------------------------------------------------------------
	// 核心组件构造
	// ------------------------------------------------------------------
	registry := trust.NewRegistry()
	registry.Replace(b.eligible)

	trustMet := metrics.NewTrust(b.registerer)
	connMet := metrics.NewConnectivity(b.registerer)
	gater := trust.NewGater(b.authMode, registry, trustMet)
	gw := gateway.NewMemory(local, gater, b.gwReqs, b.notifier, b.handshake)
	sender := gateway.NewRequestSender(b.gwReqs)

	var mgr *connectivity.Manager
	if b.withConnMgr {
		notifs := b.notifier.Subscribe(b.cfg.Channels.NotificationBuffer, b.cfg.Channels.QueueStyle())
		mgr, err = connectivity.New(
			connectivity.Config{
				CheckInterval:      b.cfg.Connectivity.CheckInterval.Duration(),
				BackoffBase:        b.cfg.Connectivity.BackoffBase.Duration(),
				MaxConnectionDelay: b.cfg.Connectivity.MaxConnectionDelay.Duration(),
				RequestBuffer:      b.cfg.Connectivity.RequestBuffer,
			},
			b.clk, local, registry, b.seeds, sender, notifs, connMet)
		if err != nil {
			return nil, err
		}
	}

	var checker *health.Checker
	if b.withHealth {
		ping := b.ping
		if ping == nil {
			ping = connectedPing(gw)
		}
		notifs := b.notifier.Subscribe(b.cfg.Channels.NotificationBuffer, b.cfg.Channels.QueueStyle())
		checker, err = health.New(
			health.Config{
				PingInterval:      b.cfg.Health.PingInterval.Duration(),
				PingTimeout:       b.cfg.Health.PingTimeout.Duration(),
				FailuresTolerated: b.cfg.Health.FailuresTolerated,
				MaxConcurrent:     b.cfg.Channels.OutboundConcurrency,
			},
			b.clk, ping, sender, notifs)
		if err != nil {
			return nil, err
		}
	}

	var gossip *discovery.Service
	if b.withGossip {
		gossip, err = discovery.New(
			discovery.Config{
				BroadcastInterval: b.cfg.Discovery.BroadcastInterval.Duration(),
				InboundQueue:      b.cfg.Channels.InboundConcurrency,
			},
			b.clk, local, []types.NetworkAddress{advertised},
			b.signKey, registry, mgr.Requests(), b.broadcast)
		if err != nil {
			return nil, err
		}
	}

	// ------------------------------------------------------------------
	// 启动：网关先行，协议执行体随后
	// ------------------------------------------------------------------
	runCtx, cancel := context.WithCancel(ctx)

	gw.Start(runCtx)
	if mgr != nil {
		mgr.Start(runCtx)
	}
	if checker != nil {
		checker.Start(runCtx)
	}
	if gossip != nil {
		gossip.Start(runCtx)
	}

	logger.Info("网络实例已启动",
		"peer", local.ShortString(),
		"role", b.role.String(),
		"auth_mode", b.authMode.Kind().String(),
		"listen", listen.String(),
		"eligible", registry.Len(),
		"seeds", len(b.seeds),
		"protocols", len(b.protocols))

	return &Network{
		local:      local,
		role:       b.role,
		listen:     listen,
		advertised: advertised,
		protocols:  append([]types.ProtocolID(nil), b.protocols...),
		registry:   registry,
		gater:      gater,
		sender:     sender,
		gw:         gw,
		notifier:   b.notifier,
		mgr:        mgr,
		checker:    checker,
		gossip:     gossip,
		cancel:     cancel,
	}, nil
}

// connectedPing 默认 ping：以网关连接存在性为健康依据
func connectedPing(gw *gateway.Memory) health.PingFunc {
	return func(ctx context.Context, peer types.PeerID) error {
		if gw.Connected(peer) {
			return nil
		}
		return ErrPeerUnreachable
	}
}
