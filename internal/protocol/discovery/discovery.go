// Package discovery 实现 gossip 地址发现协议
//
// 每个节点周期性地向全部活动连接广播自己的签名地址公告；
// 收到的公告先验证签名者资格与签名有效性，再按纪元去重，
// 最后把更新的地址转交连接调和引擎。发现协议依赖连接调和
// 引擎存在——学到的地址没有消费者时协议毫无意义，装配期
// 直接拒绝这种组合。
package discovery

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-valnet/internal/core/connectivity"
	"github.com/dep2p/go-valnet/internal/core/trust"
	"github.com/dep2p/go-valnet/pkg/lib/log"
	"github.com/dep2p/go-valnet/pkg/types"
)

var logger = log.Logger("protocol/discovery")

// ProtocolID 地址发现协议标识
const ProtocolID types.ProtocolID = "/valnet/discovery/1.0.0"

// 默认配置常量
const (
	// DefaultBroadcastInterval 默认公告广播间隔
	DefaultBroadcastInterval = 1 * time.Second

	// DefaultInboundQueue 默认入站公告队列容量
	DefaultInboundQueue = 100
)

// ============================================================================
//                              配置
// ============================================================================

// Config 地址发现配置
type Config struct {
	// BroadcastInterval 自身公告广播间隔
	//
	// 默认值: 1 秒
	BroadcastInterval time.Duration

	// InboundQueue 待处理入站公告的队列容量
	//
	// 默认值: 100
	InboundQueue int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BroadcastInterval: DefaultBroadcastInterval,
		InboundQueue:      DefaultInboundQueue,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.BroadcastInterval <= 0 {
		return errors.New("discovery: broadcast interval must be positive")
	}
	if c.InboundQueue <= 0 {
		return errors.New("discovery: inbound queue must be positive")
	}
	return nil
}

// ============================================================================
//                              Service 实现
// ============================================================================

// BroadcastFunc 把自身公告广播给全部活动连接
//
// 真实部署中经认证通道发送；进程内部署由测试桥接。
type BroadcastFunc func(ctx context.Context, note Note) error

// Service 地址发现服务
//
// 入站公告经 HandleNote 进入单个控制循环串行处理；
// 验证通过且纪元更新的公告转化为对连接调和引擎的地址更新。
type Service struct {
	cfg      Config
	clk      clock.Clock
	local    Note
	signKey  ed25519.PrivateKey
	registry *trust.Registry

	// connReqs 连接调和引擎的管理请求通道（必需依赖）
	connReqs chan<- connectivity.Request

	broadcast BroadcastFunc
	inbound   chan Note

	mu    sync.Mutex
	notes map[types.PeerID]uint64 // 已接受的最新纪元

	wg sync.WaitGroup
}

// New 创建地址发现服务
//
// connReqs 为 nil 时拒绝创建：没有连接调和引擎，学到的地址
// 没有去处。
func New(
	cfg Config,
	clk clock.Clock,
	local types.PeerID,
	addrs []types.NetworkAddress,
	signKey ed25519.PrivateKey,
	registry *trust.Registry,
	connReqs chan<- connectivity.Request,
	broadcast BroadcastFunc,
) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if connReqs == nil {
		return nil, errors.New("discovery: connectivity request channel required")
	}
	if len(signKey) != ed25519.PrivateKeySize {
		return nil, errors.New("discovery: signing key required")
	}
	if clk == nil {
		clk = clock.New()
	}

	note := Note{
		PeerID: local,
		Addrs:  append([]types.NetworkAddress(nil), addrs...),
		Epoch:  1,
	}
	note.Sign(signKey)

	return &Service{
		cfg:       cfg,
		clk:       clk,
		local:     note,
		signKey:   signKey,
		registry:  registry,
		connReqs:  connReqs,
		broadcast: broadcast,
		inbound:   make(chan Note, cfg.InboundQueue),
		notes:     make(map[types.PeerID]uint64),
	}, nil
}

// LocalNote 返回当前的自身公告
func (s *Service) LocalNote() Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

// UpdateLocalAddresses 更新自身可达地址并递增纪元
func (s *Service) UpdateLocalAddresses(addrs []types.NetworkAddress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.local = Note{
		PeerID: s.local.PeerID,
		Addrs:  append([]types.NetworkAddress(nil), addrs...),
		Epoch:  s.local.Epoch + 1,
	}
	s.local.Sign(s.signKey)
	logger.Info("自身地址公告已更新",
		"epoch", s.local.Epoch,
		"addrs", len(s.local.Addrs))
}

// HandleNote 提交一份入站公告（非阻塞）
//
// 通道满时丢弃：gossip 公告会被周期性重发，丢一份无损正确性。
func (s *Service) HandleNote(note Note) {
	select {
	case s.inbound <- note:
	default:
		logger.Debug("入站公告通道已满，丢弃公告",
			"peer", note.PeerID.ShortString())
	}
}

// Start 启动发现服务循环
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Wait 等待发现服务循环退出
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) loop(ctx context.Context) {
	ticker := s.clk.Ticker(s.cfg.BroadcastInterval)
	defer ticker.Stop()

	logger.Info("地址发现服务已启动",
		"broadcast_interval", s.cfg.BroadcastInterval)

	for {
		select {
		case <-ctx.Done():
			logger.Info("地址发现服务已停止")
			return

		case <-ticker.C:
			if s.broadcast == nil {
				continue
			}
			if err := s.broadcast(ctx, s.LocalNote()); err != nil {
				logger.Debug("公告广播失败", "err", err)
			}

		case note := <-s.inbound:
			if err := s.acceptNote(ctx, note); err != nil {
				logger.Debug("拒绝入站公告",
					"peer", note.PeerID.ShortString(),
					"epoch", note.Epoch,
					"err", err)
			}
		}
	}
}

// acceptNote 验证并应用一份入站公告
//
// 验证顺序：签名者资格 → 签名有效性 → 纪元新旧。
// 全部通过后把地址更新转交连接调和引擎。
func (s *Service) acceptNote(ctx context.Context, note Note) error {
	keys, ok := s.registry.PublicKeys(note.PeerID)
	if !ok {
		return ErrUnknownSigner
	}
	if err := note.Verify(keys.SigningKey); err != nil {
		return err
	}

	s.mu.Lock()
	if prev, seen := s.notes[note.PeerID]; seen && note.Epoch <= prev {
		s.mu.Unlock()
		return ErrStaleNote
	}
	s.notes[note.PeerID] = note.Epoch
	s.mu.Unlock()

	logger.Debug("接受地址公告",
		"peer", note.PeerID.ShortString(),
		"epoch", note.Epoch,
		"addrs", len(note.Addrs))

	select {
	case s.connReqs <- connectivity.UpdateAddresses{
		PeerID: note.PeerID,
		Addrs:  note.Addrs,
	}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
