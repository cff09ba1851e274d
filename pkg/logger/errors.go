package logger

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidOutputPath 启用文件输出但未指定路径
	ErrInvalidOutputPath = errors.New("output path is required when file output is enabled")
	// ErrNoOutputEnabled 控制台和文件输出都被禁用
	ErrNoOutputEnabled = errors.New("at least one output must be enabled")
)
