package app

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	name    string
	events  *[]string
	failure error
}

func (s *fakeServer) Start() error {
	*s.events = append(*s.events, "start:"+s.name)
	return s.failure
}

func (s *fakeServer) Stop() error {
	*s.events = append(*s.events, "stop:"+s.name)
	return nil
}

type fakeCloser struct {
	name   string
	events *[]string
}

func (c *fakeCloser) Close() error {
	*c.events = append(*c.events, "close:"+c.name)
	return nil
}

// TestShutdownReverseOrder 服务逆序停止，资源随后关闭
func TestShutdownReverseOrder(t *testing.T) {
	events := make([]string, 0)

	a := New()
	a.RegisterServer(&fakeServer{name: "auth", events: &events})
	a.RegisterServer(&fakeServer{name: "game", events: &events})
	a.RegisterCloser(&fakeCloser{name: "db", events: &events})

	// 直接驱动启动与停机（不经过信号等待）
	for _, srv := range a.servers {
		require.NoError(t, srv.Start())
	}
	a.started.Store(true)
	require.NoError(t, a.Shutdown())

	assert.Equal(t, []string{
		"start:auth", "start:game",
		"stop:game", "stop:auth",
		"close:db",
	}, events)

	// 停机幂等
	require.NoError(t, a.Shutdown())
	assert.Len(t, events, 5)
}

// TestStartFailureRollsBack 启动失败时回滚已启动的服务
func TestStartFailureRollsBack(t *testing.T) {
	events := make([]string, 0)
	boom := errors.New("bind failed")

	a := New()
	a.RegisterServer(&fakeServer{name: "auth", events: &events})
	a.RegisterServer(&fakeServer{name: "margin", events: &events, failure: boom})

	err := a.Run()
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, []string{"start:auth", "start:margin", "stop:auth"}, events)
}

func TestRunTwiceRejected(t *testing.T) {
	a := New()
	a.started.Store(true)
	assert.True(t, errors.Is(a.Run(), ErrAppAlreadyRunning))
}
