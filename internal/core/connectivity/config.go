package connectivity

import (
	"errors"
	"time"
)

// Config 连接管理器配置
//
// 所有字段在装配期固定，启动后不可更改。
type Config struct {
	// CheckInterval 调和检查间隔
	//
	// 每个 tick 触发一次完整的调和 pass。
	// 默认值: 5 秒
	CheckInterval time.Duration

	// BackoffBase 每节点退避基础延迟
	//
	// 首次拨号失败后的最小重试间隔，之后指数增长。
	// 默认值: 2 秒
	BackoffBase time.Duration

	// MaxConnectionDelay 退避延迟上限
	//
	// 默认值: 10 分钟
	MaxConnectionDelay time.Duration

	// RequestBuffer 管理请求通道容量
	//
	// 默认值: 1024
	RequestBuffer int
}

// 默认配置常量
const (
	// DefaultCheckInterval 默认调和检查间隔
	DefaultCheckInterval = 5 * time.Second

	// DefaultBackoffBase 默认退避基础延迟
	DefaultBackoffBase = 2 * time.Second

	// DefaultMaxConnectionDelay 默认退避延迟上限
	DefaultMaxConnectionDelay = 10 * time.Minute

	// DefaultRequestBuffer 默认管理请求通道容量
	DefaultRequestBuffer = 1024
)

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		CheckInterval:      DefaultCheckInterval,
		BackoffBase:        DefaultBackoffBase,
		MaxConnectionDelay: DefaultMaxConnectionDelay,
		RequestBuffer:      DefaultRequestBuffer,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.CheckInterval <= 0 {
		return errors.New("connectivity: check interval must be positive")
	}
	if c.BackoffBase <= 0 {
		return errors.New("connectivity: backoff base must be positive")
	}
	if c.MaxConnectionDelay < c.BackoffBase {
		return errors.New("connectivity: max connection delay must be >= backoff base")
	}
	if c.RequestBuffer <= 0 {
		return errors.New("connectivity: request buffer must be positive")
	}
	return nil
}
