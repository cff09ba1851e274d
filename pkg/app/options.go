package app

import "github.com/hardlinedev/reality/pkg/logger"

// Options 应用选项
type Options struct {
	// Name 应用名，作为主日志的命名前缀
	Name string
	// Logger 主日志对象
	Logger logger.Logger
}

// Option 选项函数
type Option func(*Options)

// DefaultOptions 默认选项
func DefaultOptions() Options {
	return Options{
		Name:   "reality",
		Logger: logger.NewNop(),
	}
}

// WithName 设置应用名
func WithName(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

// WithLogger 设置主日志对象
func WithLogger(l logger.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}
