package config

import "github.com/cockroachdb/errors"

var (
	// ErrNilConfig 配置为空
	ErrNilConfig = errors.New("config is nil")
	// ErrFileNotFound 配置文件不存在
	ErrFileNotFound = errors.New("config file not found")
	// ErrUnmarshalFailed 配置解析失败
	ErrUnmarshalFailed = errors.New("config unmarshal failed")
)
