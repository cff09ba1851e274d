package logger

// NopLogger 丢弃所有输出的 Logger，测试用
type NopLogger struct{}

var _ Logger = (*NopLogger)(nil)

// NewNop 创建 NopLogger
func NewNop() *NopLogger {
	return &NopLogger{}
}

func (n *NopLogger) Debug(string, ...interface{}) {}
func (n *NopLogger) Info(string, ...interface{})  {}
func (n *NopLogger) Warn(string, ...interface{})  {}
func (n *NopLogger) Error(string, ...interface{}) {}

func (n *NopLogger) Named(string) Logger              { return n }
func (n *NopLogger) WithFields(...interface{}) Logger { return n }

func (n *NopLogger) Sync() error { return nil }
