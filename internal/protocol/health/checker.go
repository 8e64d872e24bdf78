// Package health 实现连接健康检查协议
//
// 健康检查器周期性地对每个活动连接发起 ping，容忍有限次数的
// 连续失败；超过容忍上限后向连接网关请求断开该节点，由连接
// 调和引擎按退避策略重建连接。pong 成功或连接重建都会清零
// 失败计数。
package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-valnet/internal/core/gateway"
	"github.com/dep2p/go-valnet/pkg/lib/log"
	"github.com/dep2p/go-valnet/pkg/types"
)

var logger = log.Logger("protocol/health")

// ProtocolID 健康检查协议标识
const ProtocolID types.ProtocolID = "/valnet/health/1.0.0"

// ============================================================================
//                              配置
// ============================================================================

// 默认配置常量
const (
	// DefaultPingInterval 默认 ping 发起间隔
	DefaultPingInterval = 1 * time.Second

	// DefaultPingTimeout 默认单次 ping 超时
	DefaultPingTimeout = 10 * time.Second

	// DefaultFailuresTolerated 默认容忍的连续失败次数
	DefaultFailuresTolerated = 10

	// DefaultMaxConcurrent 默认出站 ping 并发上限
	DefaultMaxConcurrent = 100
)

// Config 健康检查器配置
type Config struct {
	// PingInterval ping 发起间隔
	//
	// 默认值: 1 秒
	PingInterval time.Duration

	// PingTimeout 单次 ping 超时
	//
	// 默认值: 10 秒
	PingTimeout time.Duration

	// FailuresTolerated 容忍的连续失败次数
	//
	// 超过该次数后请求断开节点。
	// 默认值: 10
	FailuresTolerated int

	// MaxConcurrent 同时在途的 ping 数上限
	//
	// 默认值: 100
	MaxConcurrent int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		PingInterval:      DefaultPingInterval,
		PingTimeout:       DefaultPingTimeout,
		FailuresTolerated: DefaultFailuresTolerated,
		MaxConcurrent:     DefaultMaxConcurrent,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.PingInterval <= 0 {
		return errors.New("health: ping interval must be positive")
	}
	if c.PingTimeout <= 0 {
		return errors.New("health: ping timeout must be positive")
	}
	if c.FailuresTolerated < 0 {
		return errors.New("health: failures tolerated must be non-negative")
	}
	if c.MaxConcurrent <= 0 {
		return errors.New("health: max concurrent must be positive")
	}
	return nil
}

// ============================================================================
//                              Checker 实现
// ============================================================================

// PingFunc 对单个节点执行一次应用层 ping
//
// 真实部署中这是经认证通道的往返请求；进程内部署由网关桥接。
type PingFunc func(ctx context.Context, peer types.PeerID) error

// pingResult 单次 ping 的结果
type pingResult struct {
	peer  types.PeerID
	round uint64
	err   error
}

// peerState 单个节点的健康状态
type peerState struct {
	// failures 连续失败计数，pong 成功或重连时清零
	failures int

	// since （重）连接时的 ping 轮次；更早轮次的迟到结果作废，
	// 避免重连前的超时污染新连接的计数
	since uint64
}

// Checker 连接健康检查器
//
// 通过连接通知订阅跟踪活动连接集合；每个 tick 对全部活动连接
// 并发发起 ping，结果回流到单个控制循环串行处理。
type Checker struct {
	cfg    Config
	clk    clock.Clock
	ping   PingFunc
	sender gateway.RequestSender
	notifs <-chan types.ConnectionNotification

	peers   map[types.PeerID]*peerState
	results chan pingResult
	sem     chan struct{}
	round   uint64

	wg sync.WaitGroup
}

// New 创建健康检查器
func New(
	cfg Config,
	clk clock.Clock,
	ping PingFunc,
	sender gateway.RequestSender,
	notifs <-chan types.ConnectionNotification,
) (*Checker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	if ping == nil {
		return nil, errors.New("health: ping function required")
	}

	return &Checker{
		cfg:     cfg,
		clk:     clk,
		ping:    ping,
		sender:  sender,
		notifs:  notifs,
		peers:   make(map[types.PeerID]*peerState),
		results: make(chan pingResult, 64),
		sem:     make(chan struct{}, cfg.MaxConcurrent),
	}, nil
}

// Start 启动健康检查循环
func (c *Checker) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.loop(ctx)
	}()
}

// Wait 等待健康检查循环退出
func (c *Checker) Wait() {
	c.wg.Wait()
}

func (c *Checker) loop(ctx context.Context) {
	ticker := c.clk.Ticker(c.cfg.PingInterval)
	defer ticker.Stop()

	logger.Info("健康检查器已启动",
		"ping_interval", c.cfg.PingInterval,
		"failures_tolerated", c.cfg.FailuresTolerated)

	for {
		select {
		case <-ctx.Done():
			logger.Info("健康检查器已停止")
			return

		case <-ticker.C:
			c.pingAll(ctx)

		case res := <-c.results:
			c.handleResult(res)

		case notif, ok := <-c.notifs:
			if !ok {
				return
			}
			c.handleNotification(notif)
		}
	}
}

// pingAll 对全部活动连接并发发起一轮 ping
func (c *Checker) pingAll(ctx context.Context) {
	c.round++
	round := c.round

	for peer := range c.peers {
		peer := peer
		go func() {
			// 出站并发上限：超额的 ping 等待而不是无界扩散
			select {
			case c.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-c.sem }()

			pingCtx, cancel := c.clk.WithTimeout(ctx, c.cfg.PingTimeout)
			defer cancel()

			err := c.ping(pingCtx, peer)
			select {
			case c.results <- pingResult{peer: peer, round: round, err: err}:
			case <-ctx.Done():
			}
		}()
	}
}

// handleResult 处理单次 ping 结果
func (c *Checker) handleResult(res pingResult) {
	state, ok := c.peers[res.peer]
	if !ok {
		// 节点已断开，结果作废
		return
	}
	if res.round <= state.since {
		// 重连前轮次的迟到结果
		return
	}

	if res.err == nil {
		state.failures = 0
		return
	}

	state.failures++
	logger.Debug("ping 失败",
		"peer", res.peer.ShortString(),
		"round", res.round,
		"failures", state.failures,
		"err", res.err)

	if state.failures > c.cfg.FailuresTolerated {
		logger.Info("连续 ping 失败超限，请求断开节点",
			"peer", res.peer.ShortString(),
			"failures", state.failures)
		if err := c.sender.TrySend(gateway.DisconnectRequest{PeerID: res.peer}); err != nil {
			// 网关过载：保留计数，后续失败会再次触发
			return
		}
		delete(c.peers, res.peer)
	}
}

func (c *Checker) handleNotification(notif types.ConnectionNotification) {
	switch notif.Event {
	case types.EventConnected:
		// 新连接（或重连）从零开始计数，此前轮次的结果不再计入
		c.peers[notif.PeerID] = &peerState{since: c.round}
	case types.EventDisconnected:
		delete(c.peers, notif.PeerID)
	}
}
