package logger

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewRotationWriter 创建按大小轮换的日志写入器
func NewRotationWriter(cfg *RotationConfig, path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
}
