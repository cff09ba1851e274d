package postgres

import "time"

// Config PostgreSQL 客户端配置
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
	SSLMode  string `mapstructure:"ssl_mode"`

	Pool PoolConfig `mapstructure:"pool"`

	// QueryTimeout 单次查询超时
	QueryTimeout time.Duration `mapstructure:"query_timeout"`

	// 瞬时故障重试
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Host:    "127.0.0.1",
		Port:    5432,
		SSLMode: "disable",
		Pool: PoolConfig{
			MaxConns:          8,
			MinConns:          2,
			MaxConnLifetime:   time.Hour,
			MaxConnIdleTime:   30 * time.Minute,
			HealthCheckPeriod: time.Minute,
		},
		QueryTimeout:  5 * time.Second,
		RetryAttempts: 3,
		RetryBackoff:  100 * time.Millisecond,
	}
}
