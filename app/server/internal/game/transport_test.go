package game

import (
	"math/rand"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hardlinedev/reality/pkg/crypto"
	"github.com/hardlinedev/reality/pkg/logger"
	"github.com/hardlinedev/reality/pkg/wire"
)

// testLink 把两个 Transport 对接起来，可注入丢包
type testLink struct {
	a, b *Transport
	// drop 返回 true 时该方向的数据报被丢弃
	dropAtoB func(n int) bool
	dropBtoA func(n int) bool

	deliveredAtB []*wire.Packet
	deliveredAtA []*wire.Packet

	sentAtoB int
	sentBtoA int
}

func newTestLink(t *testing.T, cfg *TransportConfig) *testLink {
	t.Helper()
	link := &testLink{}

	link.a = NewTransport(cfg, func(data []byte) error {
		link.sentAtoB++
		if link.dropAtoB != nil && link.dropAtoB(link.sentAtoB) {
			return nil
		}
		pkts, err := link.b.Receive(append([]byte(nil), data...))
		if err != nil {
			return err
		}
		link.deliveredAtB = append(link.deliveredAtB, pkts...)
		return nil
	}, nil, logger.NewNop())

	link.b = NewTransport(cfg, func(data []byte) error {
		link.sentBtoA++
		if link.dropBtoA != nil && link.dropBtoA(link.sentBtoA) {
			return nil
		}
		pkts, err := link.a.Receive(append([]byte(nil), data...))
		if err != nil {
			return err
		}
		link.deliveredAtA = append(link.deliveredAtA, pkts...)
		return nil
	}, nil, logger.NewNop())

	return link
}

// reliableAtB 过滤出 B 侧收到的可靠业务报文
func (l *testLink) reliableAtB() []*wire.Packet {
	out := make([]*wire.Packet, 0, len(l.deliveredAtB))
	for _, p := range l.deliveredAtB {
		if p.Reliable() {
			out = append(out, p)
		}
	}
	return out
}

func TestTransportReliableDelivery(t *testing.T) {
	link := newTestLink(t, nil)

	require.NoError(t, link.a.Send(wire.MsgChatMessage, []byte("hello"), wire.PacketFlagReliable))

	pkts := link.reliableAtB()
	require.Len(t, pkts, 1)
	assert.Equal(t, wire.MsgChatMessage, pkts[0].Type)
	assert.Equal(t, []byte("hello"), pkts[0].Payload)
}

// TestTransportEncryption 加密载荷在对端透明解密
func TestTransportEncryption(t *testing.T) {
	link := newTestLink(t, nil)

	key := crypto.DeriveCipherKey("shared-session-key")
	ca, err := crypto.NewStreamCipher(key)
	require.NoError(t, err)
	cb, err := crypto.NewStreamCipher(key)
	require.NoError(t, err)
	link.a.SetCipher(ca)
	link.b.SetCipher(cb)

	payload := []byte("secret movement data")
	require.NoError(t, link.a.Send(wire.MsgPlayerMovement, payload,
		wire.PacketFlagReliable|wire.PacketFlagEncrypted))

	pkts := link.reliableAtB()
	require.Len(t, pkts, 1)
	assert.Equal(t, payload, pkts[0].Payload)
}

// TestTransportCompression 超过阈值的载荷压缩传输
func TestTransportCompression(t *testing.T) {
	cfg := DefaultTransportConfig()
	cfg.CompressMin = 64
	link := newTestLink(t, cfg)

	payload := bytesRepeat('x', 4096)
	require.NoError(t, link.a.Send(wire.MsgWorldState, payload,
		wire.PacketFlagReliable|wire.PacketFlagCompressed))

	pkts := link.reliableAtB()
	require.Len(t, pkts, 1)
	assert.Equal(t, payload, pkts[0].Payload)
}

// TestTransportRetransmit 丢包后由 tick 重传恢复，交付恰好一次
func TestTransportRetransmit(t *testing.T) {
	cfg := DefaultTransportConfig()
	cfg.Resend = time.Millisecond
	link := newTestLink(t, cfg)

	// 前三次发送被丢弃
	link.dropAtoB = func(n int) bool { return n <= 3 }

	require.NoError(t, link.a.Send(wire.MsgChatMessage, []byte("persist"), wire.PacketFlagReliable))
	assert.Empty(t, link.reliableAtB())
	assert.Equal(t, 1, link.a.UnackedCount())

	base := time.Now()
	for i := 0; i < 4; i++ {
		base = base.Add(10 * time.Millisecond)
		link.a.now = func() time.Time { return base }
		require.NoError(t, link.a.Tick())
	}

	pkts := link.reliableAtB()
	require.Len(t, pkts, 1, "exactly one delivery expected")
	assert.Equal(t, []byte("persist"), pkts[0].Payload)

	// 确认回流后未确认队列清空
	link.b.FlushAck()
	assert.Equal(t, 0, link.a.UnackedCount())
}

// TestTransportDuplicateSuppression 重复的可靠包只交付一次
func TestTransportDuplicateSuppression(t *testing.T) {
	link := newTestLink(t, nil)

	var captured []byte
	orig := link.a.output
	link.a.output = func(data []byte) error {
		captured = append([]byte(nil), data...)
		return orig(data)
	}

	require.NoError(t, link.a.Send(wire.MsgChatMessage, []byte("once"), wire.PacketFlagReliable))
	require.Len(t, link.reliableAtB(), 1)

	// 同一数据报重放三次
	for i := 0; i < 3; i++ {
		_, err := link.b.Receive(captured)
		require.NoError(t, err)
	}
	assert.Len(t, link.reliableAtB(), 1)
}

// TestTransportOrderedDelivery 乱序到达的可靠包按 seq 顺序交付
func TestTransportOrderedDelivery(t *testing.T) {
	link := newTestLink(t, nil)

	var escaped [][]byte
	// 捕获而不投递
	link.a.output = func(data []byte) error {
		escaped = append(escaped, append([]byte(nil), data...))
		return nil
	}

	for _, msg := range []string{"first", "second", "third"} {
		require.NoError(t, link.a.Send(wire.MsgChatMessage, []byte(msg), wire.PacketFlagReliable))
	}
	require.Len(t, escaped, 3)

	// 2, 0, 1 的顺序到达
	for _, idx := range []int{2, 0, 1} {
		pkts, err := link.b.Receive(escaped[idx])
		require.NoError(t, err)
		link.deliveredAtB = append(link.deliveredAtB, pkts...)
	}

	pkts := link.reliableAtB()
	require.Len(t, pkts, 3)
	assert.Equal(t, []byte("first"), pkts[0].Payload)
	assert.Equal(t, []byte("second"), pkts[1].Payload)
	assert.Equal(t, []byte("third"), pkts[2].Payload)
}

// TestTransportSeqWrap 序号从 0xFFFF 回绕不乱序
func TestTransportSeqWrap(t *testing.T) {
	link := newTestLink(t, nil)

	link.a.mu.Lock()
	link.a.nextSendSeq = 0xFFFE
	link.a.mu.Unlock()
	link.b.mu.Lock()
	link.b.expectedRecvSeq = 0xFFFE
	link.b.mu.Unlock()

	for _, msg := range []string{"w1", "w2", "w3", "w4"} {
		require.NoError(t, link.a.Send(wire.MsgChatMessage, []byte(msg), wire.PacketFlagReliable))
	}

	pkts := link.reliableAtB()
	require.Len(t, pkts, 4)
	for i, want := range []string{"w1", "w2", "w3", "w4"} {
		assert.Equal(t, []byte(want), pkts[i].Payload)
	}

	link.b.FlushAck()
	assert.Equal(t, 0, link.a.UnackedCount())
}

// TestTransportLossSoak 5% 随机丢包下可靠消息恰好一次交付
func TestTransportLossSoak(t *testing.T) {
	cfg := DefaultTransportConfig()
	cfg.Resend = time.Millisecond
	link := newTestLink(t, cfg)

	rng := rand.New(rand.NewSource(7))
	link.dropAtoB = func(int) bool { return rng.Float64() < 0.05 }
	link.dropBtoA = func(int) bool { return rng.Float64() < 0.05 }

	const total = 500
	base := time.Now()
	for i := 0; i < total; i++ {
		require.NoError(t, link.a.Send(wire.MsgChatMessage, []byte{byte(i), byte(i >> 8)}, wire.PacketFlagReliable))
		base = base.Add(5 * time.Millisecond)
		link.a.now = func() time.Time { return base }
		link.b.now = func() time.Time { return base }
		require.NoError(t, link.a.Tick())
		require.NoError(t, link.b.Tick())
	}
	// 收尾重传
	for i := 0; i < 50; i++ {
		base = base.Add(5 * time.Millisecond)
		link.a.now = func() time.Time { return base }
		require.NoError(t, link.a.Tick())
	}

	pkts := link.reliableAtB()
	require.Len(t, pkts, total, "every reliable message delivered exactly once")
	for i, p := range pkts {
		assert.Equal(t, []byte{byte(i), byte(i >> 8)}, p.Payload, "order preserved at %d", i)
	}
}

// TestTransportTimeout 无活动超时
func TestTransportTimeout(t *testing.T) {
	cfg := DefaultTransportConfig()
	cfg.Timeout = 100 * time.Millisecond
	tr := NewTransport(cfg, func([]byte) error { return nil }, nil, logger.NewNop())

	base := time.Now()
	tr.now = func() time.Time { return base.Add(time.Second) }

	err := tr.Tick()
	assert.True(t, errors.Is(err, ErrPeerTimeout))
}

// TestTransportRetriesExhausted 重传耗尽后报错
func TestTransportRetriesExhausted(t *testing.T) {
	cfg := DefaultTransportConfig()
	cfg.Resend = time.Millisecond
	cfg.MaxRetries = 3
	cfg.Timeout = time.Hour
	tr := NewTransport(cfg, func([]byte) error { return nil }, nil, logger.NewNop())

	require.NoError(t, tr.Send(wire.MsgChatMessage, []byte("void"), wire.PacketFlagReliable))

	base := time.Now()
	var err error
	for i := 0; i < 10 && err == nil; i++ {
		base = base.Add(10 * time.Millisecond)
		tr.now = func() time.Time { return base }
		tr.lastActivity = base // 只考察重传路径
		err = tr.Tick()
	}
	assert.True(t, errors.Is(err, ErrTooManyRetries))
}

// TestTransportBackpressure 未确认队列超限拒绝发送
func TestTransportBackpressure(t *testing.T) {
	cfg := DefaultTransportConfig()
	cfg.MaxUnacked = 4
	tr := NewTransport(cfg, func([]byte) error { return nil }, nil, logger.NewNop())

	for i := 0; i < 4; i++ {
		require.NoError(t, tr.Send(wire.MsgChatMessage, nil, wire.PacketFlagReliable))
	}
	err := tr.Send(wire.MsgChatMessage, nil, wire.PacketFlagReliable)
	assert.True(t, errors.Is(err, ErrBackpressure))
}

// TestTransportClosedIdempotent 关闭后的操作幂等报错
func TestTransportClosedIdempotent(t *testing.T) {
	tr := NewTransport(nil, func([]byte) error { return nil }, nil, logger.NewNop())

	tr.Close()
	tr.Close() // 幂等

	assert.True(t, errors.Is(tr.Send(0x1009, nil, 0), ErrTransportClosed))
	assert.True(t, errors.Is(tr.Tick(), ErrTransportClosed))
	_, err := tr.Receive(wire.EncodePacket(&wire.Packet{}))
	assert.True(t, errors.Is(err, ErrTransportClosed))
}

func bytesRepeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
