package valnet

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// ============================================================================
//                              Fx 集成
// ============================================================================

// Module 把构建器产出的网络实例接入 fx 生命周期
//
// 构建在依赖图解析时完成（装配错误即启动失败），
// OnStop 钩子负责优雅停机。
func Module(b *Builder) fx.Option {
	return fx.Provide(func(lc fx.Lifecycle) (*Network, error) {
		network, err := b.Build(context.Background())
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				network.Close()
				return nil
			},
		})
		return network, nil
	})
}

// FxLogger 返回 zap 支撑的 fx 事件日志选项
func FxLogger() fx.Option {
	return fx.WithLogger(func() fxevent.Logger {
		zl, err := zap.NewProduction()
		if err != nil {
			return fxevent.NopLogger
		}
		return &fxevent.ZapLogger{Logger: zl}
	})
}
