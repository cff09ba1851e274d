package main

import (
	"context"
	"flag"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hardlinedev/reality/app/server/internal/auth"
	"github.com/hardlinedev/reality/app/server/internal/console"
	"github.com/hardlinedev/reality/app/server/internal/dao"
	"github.com/hardlinedev/reality/app/server/internal/dialogue"
	"github.com/hardlinedev/reality/app/server/internal/game"
	"github.com/hardlinedev/reality/app/server/internal/margin"
	"github.com/hardlinedev/reality/app/server/internal/master"
	"github.com/hardlinedev/reality/app/server/internal/metrics"
	"github.com/hardlinedev/reality/app/server/internal/mission"
	"github.com/hardlinedev/reality/app/server/internal/nav"
	"github.com/hardlinedev/reality/app/server/internal/sessionkey"
	"github.com/hardlinedev/reality/app/server/internal/world"
	"github.com/hardlinedev/reality/pkg/app"
	"github.com/hardlinedev/reality/pkg/config"
	"github.com/hardlinedev/reality/pkg/database/postgres"
	"github.com/hardlinedev/reality/pkg/database/redis"
	"github.com/hardlinedev/reality/pkg/idgen"
	"github.com/hardlinedev/reality/pkg/logger"
	"github.com/hardlinedev/reality/pkg/util/conc"
)

// RedisConfig Redis 为可选依赖
type RedisConfig struct {
	Enabled bool `mapstructure:"enabled"`
	redis.Config `mapstructure:",squash"`
}

// WorldConfig 世界数据配置
type WorldConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// StoreConfig 后台存储池配置
type StoreConfig struct {
	Workers int `mapstructure:"workers"`
}

// SessionConfig 会话键配置
type SessionConfig struct {
	KeyTTL time.Duration `mapstructure:"key_ttl"`
}

// IDGenConfig ID 生成配置
type IDGenConfig struct {
	MachineID uint16 `mapstructure:"machine_id"`
}

// Config 服务器完整配置
type Config struct {
	Log logger.Config `mapstructure:"log"`

	Database postgres.Config `mapstructure:"database"`
	Redis    RedisConfig     `mapstructure:"redis"`

	Auth      auth.Config          `mapstructure:"auth"`
	Margin    margin.Config        `mapstructure:"margin"`
	Game      game.Config          `mapstructure:"game"`
	Transport game.TransportConfig `mapstructure:"transport"`

	World   WorldConfig          `mapstructure:"world"`
	Store   StoreConfig          `mapstructure:"store"`
	Session SessionConfig        `mapstructure:"session"`
	IDGen   IDGenConfig          `mapstructure:"idgen"`
	Metrics metrics.ServerConfig `mapstructure:"metrics"`
}

func main() {
	configPath := flag.String("config", "reality.yaml", "path to configuration file")
	flag.Parse()

	// 1. 配置
	var cfg Config
	mgr := config.NewManager()
	mgr.BindEnv("REALITY")
	if err := mgr.LoadFile(*configPath); err != nil {
		panic(err)
	}
	if err := mgr.Unmarshal(&cfg); err != nil {
		panic(err)
	}

	// 2. 日志
	l, err := logger.New(&cfg.Log)
	if err != nil {
		panic(err)
	}
	conc.RecoverHandler = func(r any, stack []byte) {
		l.Error("goroutine panic recovered", "panic", r, "stack", string(stack))
	}

	application := app.New(app.WithName("reality"), app.WithLogger(l))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 3. 存储
	db, err := postgres.New(ctx, &cfg.Database)
	if err != nil {
		l.Error("failed to connect to store", "error", err)
		return
	}
	application.RegisterCloser(db)

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.New(ctx, &cfg.Redis.Config)
		if err != nil {
			// Redis 只做镜像，连不上降级运行
			l.Warn("redis unavailable, running without cache mirror", "error", err)
		} else {
			application.RegisterCloser(rdb)
		}
	}

	// 4. 指标
	registry := prometheus.NewRegistry()
	serverMetrics := metrics.New(registry)

	// 5. DAO 层
	gen, err := idgen.NewSonyflake(cfg.IDGen.MachineID)
	if err != nil {
		l.Error("failed to create id generator", "error", err)
		return
	}
	accountDAO := dao.NewAccountDAO(db, l, serverMetrics)
	worldDAO := dao.NewWorldDAO(db, l, serverMetrics)
	characterDAO := dao.NewCharacterDAO(db, gen, l, serverMetrics)
	missionDAO := dao.NewMissionDAO(db, l, serverMetrics)
	dialogueDAO := dao.NewDialogueDAO(db, l, serverMetrics)
	cacheDAO := dao.NewCacheDAO(rdb, l, serverMetrics)

	// 6. 后台存储池
	workers := cfg.Store.Workers
	if workers <= 0 {
		workers = 8
	}
	storePool, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		l.Error("failed to create store pool", "error", err)
		return
	}
	defer storePool.Release()

	// 7. 会话键表
	keyTable := sessionkey.NewTable(cfg.Session.KeyTTL, cacheDAO, l)

	// 8. 世界与导航
	navMgr := nav.NewManager(l)
	worldMgr := world.NewManager(navMgr, l)
	if cfg.World.DataDir != "" {
		if err := worldMgr.LoadDistricts(cfg.World.DataDir); err != nil {
			l.Error("failed to load districts", "error", err)
			return
		}
	}

	// 9. 任务与对话引擎
	missionEngine, err := mission.NewEngine(ctx, missionDAO, storePool, l)
	if err != nil {
		l.Error("failed to initialize mission engine", "error", err)
		return
	}
	dialogueEngine, err := dialogue.NewEngine(ctx, dialogueDAO, storePool, nil, l)
	if err != nil {
		l.Error("failed to initialize dialogue engine", "error", err)
		return
	}

	// 10. 认证密钥
	serverKeys, err := auth.LoadOrGenerateKeys(cfg.Auth.KeyDir, l)
	if err != nil {
		l.Error("failed to load auth keys", "error", err)
		return
	}

	// 11. 三个服务
	gameSvc := game.NewService(&cfg.Game, &cfg.Transport, worldMgr, keyTable,
		characterDAO, cacheDAO, storePool, serverMetrics, l)
	marginSvc := margin.NewService(&cfg.Margin, keyTable, missionEngine, dialogueEngine,
		characterDAO, gameSvc, serverMetrics, l)
	authSvc := auth.NewService(&cfg.Auth, serverKeys, keyTable,
		accountDAO, worldDAO, characterDAO, serverMetrics, l)

	// 对话门控经由 Margin 服务按玩家路由（后期绑定解构造环）
	dialogueEngine.SetPlayerView(marginSvc)

	// 12. 主控、指标端点与控制台
	orchestrator := master.New(authSvc, marginSvc, gameSvc, keyTable, missionEngine, l)
	application.RegisterServer(orchestrator)
	application.RegisterServer(metrics.NewServer(&cfg.Metrics, registry, l))

	ops := auth.NewOps(accountDAO, worldDAO, characterDAO, l)
	application.RegisterServer(console.New(ops, orchestrator.Stats, application.RequestShutdown, l))

	// 13. 运行直到停机信号
	if err := application.Run(); err != nil {
		l.Error("server exited with error", "error", err)
	}
}
