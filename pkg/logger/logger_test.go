package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig 默认值
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, InfoLevel, cfg.Level)
	assert.Equal(t, ConsoleFormat, cfg.Format)
	assert.True(t, cfg.EnableConsole)
	assert.False(t, cfg.EnableFile)
	assert.True(t, cfg.EnableStacktrace)
	assert.Equal(t, ErrorLevel, cfg.StacktraceLevel)
}

// TestConfigValidate 配置校验
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr error
	}{
		{
			name:   "console only",
			config: &Config{EnableConsole: true},
		},
		{
			name:   "file with path",
			config: &Config{EnableFile: true, OutputPath: "/tmp/reality.log"},
		},
		{
			name:    "file without path",
			config:  &Config{EnableFile: true},
			wantErr: ErrInvalidOutputPath,
		},
		{
			name:    "no output at all",
			config:  &Config{},
			wantErr: ErrNoOutputEnabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestNewAndDerive 构造与派生不崩溃、部分配置可用
func TestNewAndDerive(t *testing.T) {
	l, err := New(&Config{Level: DebugLevel})
	require.NoError(t, err)

	child := l.Named("auth").WithFields("port", 10001)
	child.Debug("listening")
	child.Info("accepted", "addr", "127.0.0.1:9")
	require.NotNil(t, child)

	// 文件输出写入临时目录
	path := t.TempDir() + "/server.log"
	fl, err := New(&Config{
		EnableConsole: false,
		EnableFile:    true,
		OutputPath:    path,
		Format:        JSONFormat,
	})
	require.NoError(t, err)
	fl.Info("persisted line", "k", "v")
	require.NoError(t, fl.Sync())
}
