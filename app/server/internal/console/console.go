// Package console 实现控制台线程：账号/世界/角色管理与停机命令。
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hardlinedev/reality/app/server/internal/auth"
	"github.com/hardlinedev/reality/pkg/logger"
	"github.com/hardlinedev/reality/pkg/util/conc"
)

// StatsProvider 各服务的运行统计
type StatsProvider func() string

// Console 控制台。从标准输入逐行读命令。
type Console struct {
	logger   logger.Logger
	ops      *auth.Ops
	stats    StatsProvider
	shutdown func()

	in   io.Reader
	stop chan struct{}
}

// New 创建控制台
func New(ops *auth.Ops, stats StatsProvider, shutdown func(), l logger.Logger) *Console {
	return &Console{
		logger:   l.Named("console"),
		ops:      ops,
		stats:    stats,
		shutdown: shutdown,
		in:       os.Stdin,
		stop:     make(chan struct{}),
	}
}

// Start 启动控制台读取线程
func (c *Console) Start() error {
	conc.Go(c.loop)
	return nil
}

// Stop 停止控制台
func (c *Console) Stop() error {
	close(c.stop)
	return nil
}

func (c *Console) loop() {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		select {
		case <-c.stop:
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.execute(line)
	}
}

func (c *Console) printf(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

func (c *Console) execute(line string) {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cmd {
	case "help":
		c.printf("commands:")
		c.printf("  createaccount <username> <password>")
		c.printf("  setpassword <username> <password>")
		c.printf("  createworld <name>")
		c.printf("  createcharacter <world> <username> <handle> [first] [last]")
		c.printf("  stats")
		c.printf("  shutdown")

	case "createaccount":
		if len(args) != 2 {
			c.printf("usage: createaccount <username> <password>")
			return
		}
		id, err := c.ops.CreateAccount(ctx, args[0], args[1])
		if err != nil {
			c.printf("error: %v", err)
			return
		}
		c.printf("account %s created (id %d)", args[0], id)

	case "setpassword":
		if len(args) != 2 {
			c.printf("usage: setpassword <username> <password>")
			return
		}
		if err := c.ops.ChangePassword(ctx, args[0], args[1]); err != nil {
			c.printf("error: %v", err)
			return
		}
		c.printf("password updated for %s", args[0])

	case "createworld":
		if len(args) != 1 {
			c.printf("usage: createworld <name>")
			return
		}
		id, err := c.ops.CreateWorld(ctx, args[0])
		if err != nil {
			c.printf("error: %v", err)
			return
		}
		c.printf("world %s created (id %d)", args[0], id)

	case "createcharacter":
		if len(args) < 3 || len(args) > 5 {
			c.printf("usage: createcharacter <world> <username> <handle> [first] [last]")
			return
		}
		first, last := "", ""
		if len(args) > 3 {
			first = args[3]
		}
		if len(args) > 4 {
			last = args[4]
		}
		id, err := c.ops.CreateCharacter(ctx, args[0], args[1], args[2], first, last)
		if err != nil {
			c.printf("error: %v", err)
			return
		}
		c.printf("character %s created (id %d)", args[2], id)

	case "stats":
		if c.stats != nil {
			c.printf("%s", c.stats())
		}

	case "shutdown", "quit", "exit":
		c.printf("shutting down")
		c.shutdown()

	default:
		c.printf("unknown command %q, try help", cmd)
	}
}
