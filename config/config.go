// Package config 提供统一的配置管理
//
// 本包采用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置独立定义并各自校验
//   - 支持从 JSON 加载和保存配置
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.Connectivity.CheckInterval = config.Duration(10 * time.Second)
//
//	// 从 JSON 加载
//	cfg, err := config.FromJSON(data)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dep2p/go-valnet/pkg/types"
)

// Config 是验证者网络连接核心的完整配置结构
//
// 配置按照功能模块组织：
//   - Connectivity: 连接调和引擎
//   - Health: 连接健康检查
//   - Discovery: 地址发现
//   - Channels: 通道容量与溢出策略
//
// 全部字段在装配期固定，Build 之后不可更改。
type Config struct {
	// Connectivity 连接调和引擎配置
	Connectivity ConnectivityConfig `json:"connectivity"`

	// Health 连接健康检查配置
	Health HealthConfig `json:"health"`

	// Discovery 地址发现配置
	Discovery DiscoveryConfig `json:"discovery"`

	// Channels 通道容量与溢出策略配置
	Channels ChannelConfig `json:"channels"`
}

// NewConfig 创建带默认值的配置
func NewConfig() *Config {
	return &Config{
		Connectivity: DefaultConnectivityConfig(),
		Health:       DefaultHealthConfig(),
		Discovery:    DefaultDiscoveryConfig(),
		Channels:     DefaultChannelConfig(),
	}
}

// Validate 验证整体配置
func (c *Config) Validate() error {
	if err := c.Connectivity.Validate(); err != nil {
		return fmt.Errorf("connectivity: %w", err)
	}
	if err := c.Health.Validate(); err != nil {
		return fmt.Errorf("health: %w", err)
	}
	if err := c.Discovery.Validate(); err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	if err := c.Channels.Validate(); err != nil {
		return fmt.Errorf("channels: %w", err)
	}
	return nil
}

// FromJSON 从 JSON 数据加载配置
//
// 未出现的字段保持默认值。
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToJSON 把配置序列化为缩进 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// ============================================================================
//                              连接调和配置
// ============================================================================

// ConnectivityConfig 连接调和引擎配置
type ConnectivityConfig struct {
	// CheckInterval 调和检查间隔
	// 每个 tick 触发一次完整的调和 pass
	CheckInterval Duration `json:"check_interval"`

	// BackoffBase 每节点退避基础延迟
	// 首次拨号失败后的最小重试间隔，之后指数增长
	BackoffBase Duration `json:"backoff_base"`

	// MaxConnectionDelay 退避延迟上限
	MaxConnectionDelay Duration `json:"max_connection_delay"`

	// RequestBuffer 管理请求通道容量
	RequestBuffer int `json:"request_buffer"`
}

// DefaultConnectivityConfig 返回默认连接调和配置
func DefaultConnectivityConfig() ConnectivityConfig {
	return ConnectivityConfig{
		CheckInterval:      Duration(5 * time.Second),   // 每 5 秒调和一次
		BackoffBase:        Duration(2 * time.Second),   // 退避从 2 秒起步
		MaxConnectionDelay: Duration(10 * time.Minute),  // 退避封顶 10 分钟
		RequestBuffer:      1024,                        // 管理请求通道容量
	}
}

// Validate 验证连接调和配置
func (c ConnectivityConfig) Validate() error {
	if c.CheckInterval <= 0 {
		return errors.New("check interval must be positive")
	}
	if c.BackoffBase <= 0 {
		return errors.New("backoff base must be positive")
	}
	if c.MaxConnectionDelay < c.BackoffBase {
		return errors.New("max connection delay must be >= backoff base")
	}
	if c.RequestBuffer <= 0 {
		return errors.New("request buffer must be positive")
	}
	return nil
}

// ============================================================================
//                              健康检查配置
// ============================================================================

// HealthConfig 连接健康检查配置
type HealthConfig struct {
	// PingInterval ping 发起间隔
	PingInterval Duration `json:"ping_interval"`

	// PingTimeout 单次 ping 超时
	PingTimeout Duration `json:"ping_timeout"`

	// FailuresTolerated 容忍的连续失败次数
	// 超过该次数后请求断开节点
	FailuresTolerated int `json:"failures_tolerated"`
}

// DefaultHealthConfig 返回默认健康检查配置
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		PingInterval:      Duration(1 * time.Second),  // 每秒 ping 一轮
		PingTimeout:       Duration(10 * time.Second), // 单次 ping 最多等 10 秒
		FailuresTolerated: 10,                         // 容忍 10 次连续失败
	}
}

// Validate 验证健康检查配置
func (c HealthConfig) Validate() error {
	if c.PingInterval <= 0 {
		return errors.New("ping interval must be positive")
	}
	if c.PingTimeout <= 0 {
		return errors.New("ping timeout must be positive")
	}
	if c.FailuresTolerated < 0 {
		return errors.New("failures tolerated must be non-negative")
	}
	return nil
}

// ============================================================================
//                              地址发现配置
// ============================================================================

// DiscoveryConfig 地址发现配置
type DiscoveryConfig struct {
	// BroadcastInterval 自身公告广播间隔
	BroadcastInterval Duration `json:"broadcast_interval"`
}

// DefaultDiscoveryConfig 返回默认地址发现配置
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		BroadcastInterval: Duration(1 * time.Second), // 每秒广播一次自身公告
	}
}

// Validate 验证地址发现配置
func (c DiscoveryConfig) Validate() error {
	if c.BroadcastInterval <= 0 {
		return errors.New("broadcast interval must be positive")
	}
	return nil
}

// ============================================================================
//                              通道配置
// ============================================================================

// ChannelConfig 通道容量与溢出策略配置
//
// 所有通道容量在装配期固定。
type ChannelConfig struct {
	// GatewayBuffer 网关命令通道容量
	GatewayBuffer int `json:"gateway_buffer"`

	// NotificationBuffer 每个连接通知订阅者的通道容量
	NotificationBuffer int `json:"notification_buffer"`

	// DropOldest 订阅通道溢出时是否淘汰最旧事件
	// false 时拒绝新事件（保留已排队的旧事件）
	DropOldest bool `json:"drop_oldest"`

	// InboundConcurrency 入站协议请求并发上限
	// 约束入站公告等应用层请求的待处理队列深度
	InboundConcurrency int `json:"inbound_concurrency"`

	// OutboundConcurrency 出站协议请求并发上限
	// 约束同时在途的出站 ping 等应用层请求数
	OutboundConcurrency int `json:"outbound_concurrency"`
}

// DefaultChannelConfig 返回默认通道配置
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		GatewayBuffer:       1024, // 网关命令通道容量
		NotificationBuffer:  1024, // 订阅者通道容量
		DropOldest:          true, // 默认淘汰最旧事件
		InboundConcurrency:  100,  // 入站请求并发上限
		OutboundConcurrency: 100,  // 出站请求并发上限
	}
}

// Validate 验证通道配置
func (c ChannelConfig) Validate() error {
	if c.GatewayBuffer <= 0 {
		return errors.New("gateway buffer must be positive")
	}
	if c.NotificationBuffer <= 0 {
		return errors.New("notification buffer must be positive")
	}
	if c.InboundConcurrency <= 0 {
		return errors.New("inbound concurrency must be positive")
	}
	if c.OutboundConcurrency <= 0 {
		return errors.New("outbound concurrency must be positive")
	}
	return nil
}

// QueueStyle 返回订阅通道的溢出策略
func (c ChannelConfig) QueueStyle() types.QueueStyle {
	if c.DropOldest {
		return types.QueueDropOldest
	}
	return types.QueueReject
}
