// Package logger 提供基于 zap 的结构化日志。
package logger

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/hardlinedev/reality/pkg/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 确保 BaseLogger 实现了 Logger 接口
var _ Logger = (*BaseLogger)(nil)

// BaseLogger 基于 zap SugaredLogger 的实现
type BaseLogger struct {
	sugar  *zap.SugaredLogger
	config *Config
}

// New 创建新的 BaseLogger
func New(cfg *Config) (*BaseLogger, error) {
	// 合并默认配置，用户只传部分配置也能工作
	mergedConfig, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to merge logger config")
	}

	if err := mergedConfig.Validate(); err != nil {
		return nil, err
	}

	zapLogger, err := build(mergedConfig)
	if err != nil {
		return nil, err
	}

	return &BaseLogger{
		sugar:  zapLogger.Sugar(),
		config: mergedConfig,
	}, nil
}

// build 构建底层 zap logger
func build(cfg *Config) (*zap.Logger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(cfg.TimeFormat)
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	if cfg.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case ConsoleFormat:
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	writers := make([]zapcore.WriteSyncer, 0, 2)
	if cfg.EnableConsole {
		writers = append(writers, zapcore.AddSync(os.Stdout))
	}
	if cfg.EnableFile {
		writers = append(writers, zapcore.AddSync(NewRotationWriter(&cfg.Rotation, cfg.OutputPath)))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(writers...), parseLevel(cfg.Level))

	options := []zap.Option{
		zap.AddCaller(),
		zap.AddCallerSkip(1),
	}
	if cfg.EnableStacktrace {
		options = append(options, zap.AddStacktrace(parseLevel(cfg.StacktraceLevel)))
	}
	if cfg.Development {
		options = append(options, zap.Development())
	}

	return zap.New(core, options...), nil
}

func parseLevel(l Level) zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *BaseLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *BaseLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *BaseLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

func (l *BaseLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l *BaseLogger) Named(name string) Logger {
	return &BaseLogger{
		sugar:  l.sugar.Named(name),
		config: l.config,
	}
}

func (l *BaseLogger) WithFields(keysAndValues ...interface{}) Logger {
	return &BaseLogger{
		sugar:  l.sugar.With(keysAndValues...),
		config: l.config,
	}
}

func (l *BaseLogger) Sync() error {
	return l.sugar.Sync()
}
