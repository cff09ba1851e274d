// Package game 实现游戏服务：可靠加密 UDP 传输、玩家状态机与 RPC 分发。
package game

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/flate"

	"github.com/hardlinedev/reality/app/server/internal/metrics"
	"github.com/hardlinedev/reality/pkg/crypto"
	"github.com/hardlinedev/reality/pkg/logger"
	"github.com/hardlinedev/reality/pkg/pool/bytebuff"
	"github.com/hardlinedev/reality/pkg/wire"
)

var (
	// ErrTransportClosed 传输已关闭，清理幂等
	ErrTransportClosed = errors.New("game: transport closed")
	// ErrPeerTimeout 对端超时
	ErrPeerTimeout = errors.New("game: peer timeout")
	// ErrTooManyRetries 重传次数耗尽
	ErrTooManyRetries = errors.New("game: too many retries")
	// ErrBackpressure 未确认队列超限，会话视为无响应
	ErrBackpressure = errors.New("game: unacked queue overflow")
)

// TransportConfig 传输参数，对应配置 transport.* 键
type TransportConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	Resend       time.Duration `mapstructure:"resend"`
	MaxRetries   int           `mapstructure:"max_retries"`
	WindowSize   int           `mapstructure:"window_size"`
	MaxUnacked   int           `mapstructure:"max_unacked"`
	// CompressMin 载荷达到该字节数才压缩
	CompressMin int `mapstructure:"compress_min"`
}

// DefaultTransportConfig 默认传输参数
func DefaultTransportConfig() *TransportConfig {
	return &TransportConfig{
		Timeout:      30 * time.Second,
		PingInterval: 5 * time.Second,
		Resend:       200 * time.Millisecond,
		MaxRetries:   8,
		WindowSize:   64,
		MaxUnacked:   256,
		CompressMin:  512,
	}
}

type unackedPacket struct {
	data      []byte
	firstSend time.Time
	lastSend  time.Time
	retries   int
}

// Transport 单客户端的可靠加密 UDP 传输。
// 发送线程与 tick 线程可能并发，内部由 mu 串行化。
type Transport struct {
	logger  logger.Logger
	cfg     *TransportConfig
	metrics *metrics.ServerMetrics

	// output 把编码完的数据报写给对端
	output func(data []byte) error

	mu     sync.Mutex
	cipher *crypto.StreamCipher
	closed bool

	nextSendSeq     uint16
	expectedRecvSeq uint16
	lastAckIn       uint16
	ackPending      bool

	unacked  map[uint16]*unackedPacket
	buffered map[uint16]*wire.Packet

	// recentSeen 最近 64 个已接收可靠序号，重复抑制
	recentSeen  map[uint16]struct{}
	recentOrder []uint16

	lastActivity time.Time
	lastPing     time.Time

	now func() time.Time
}

// NewTransport 创建传输。output 负责实际发包（UDP WriteTo）。
func NewTransport(cfg *TransportConfig, output func([]byte) error, m *metrics.ServerMetrics, l logger.Logger) *Transport {
	if cfg == nil {
		cfg = DefaultTransportConfig()
	}
	t := &Transport{
		logger:     l.Named("game.transport"),
		cfg:        cfg,
		metrics:    m,
		output:     output,
		unacked:    make(map[uint16]*unackedPacket),
		buffered:   make(map[uint16]*wire.Packet),
		recentSeen: make(map[uint16]struct{}, 64),
		now:        time.Now,
	}
	t.lastActivity = t.now()
	t.lastPing = t.now()
	return t
}

// SetCipher 握手校验通过后挂载会话密钥派生的流加密
func (t *Transport) SetCipher(c *crypto.StreamCipher) {
	t.mu.Lock()
	t.cipher = c
	t.mu.Unlock()
}

// Send 发送一条消息。RELIABLE 标志的消息会被记录等待确认，
// ENCRYPTED/COMPRESSED 标志按需处理载荷。
func (t *Transport) Send(msgType uint16, payload []byte, flags uint8) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sendLocked(msgType, payload, flags)
}

func (t *Transport) sendLocked(msgType uint16, payload []byte, flags uint8) error {
	if t.closed {
		return ErrTransportClosed
	}
	if flags&wire.PacketFlagReliable != 0 && len(t.unacked) >= t.cfg.MaxUnacked {
		return ErrBackpressure
	}

	seq := t.nextSendSeq
	t.nextSendSeq++

	processed := payload
	if flags&wire.PacketFlagCompressed != 0 {
		if len(processed) >= t.cfg.CompressMin {
			compressed, err := deflate(processed)
			if err != nil {
				return errors.Wrap(err, "compress payload")
			}
			processed = compressed
		} else {
			flags &^= wire.PacketFlagCompressed
		}
	}
	if flags&wire.PacketFlagEncrypted != 0 {
		if t.cipher == nil {
			flags &^= wire.PacketFlagEncrypted
		} else {
			processed = t.cipher.Apply(seq, processed)
		}
	}

	data := wire.EncodePacket(&wire.Packet{
		Flags:   flags,
		Seq:     seq,
		Ack:     t.expectedRecvSeq - 1,
		Type:    msgType,
		Payload: processed,
	})
	t.ackPending = false

	if flags&wire.PacketFlagReliable != 0 {
		now := t.now()
		t.unacked[seq] = &unackedPacket{data: data, firstSend: now, lastSend: now}
	}

	if t.metrics != nil {
		t.metrics.PacketsSent.Inc()
	}
	return t.output(data)
}

// Receive 处理一个到达的数据报，返回按序可交付的报文
// （载荷已解密解压）。重复与窗口外的报文被吞掉。
func (t *Transport) Receive(data []byte) ([]*wire.Packet, error) {
	pkt, err := wire.DecodePacket(data)
	if err != nil {
		if t.metrics != nil {
			t.metrics.PacketsDropped.Inc()
		}
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTransportClosed
	}
	if t.metrics != nil {
		t.metrics.PacketsReceived.Inc()
	}
	t.lastActivity = t.now()

	// 对端的累积确认：释放已确认的可靠包
	t.processAckLocked(pkt.Ack)

	if !pkt.Reliable() {
		out, err := t.decodePayloadLocked(pkt)
		if err != nil {
			return nil, err
		}
		return []*wire.Packet{out}, nil
	}

	// 重复：标记待确认（让对端停止重传）后丢弃
	if _, seen := t.recentSeen[pkt.Seq]; seen || wire.SeqBefore(pkt.Seq, t.expectedRecvSeq) {
		if t.metrics != nil {
			t.metrics.PacketsDuplicate.Inc()
		}
		t.ackPending = true
		return nil, nil
	}

	switch {
	case pkt.Seq == t.expectedRecvSeq:
		t.markSeenLocked(pkt.Seq)
		t.expectedRecvSeq++
		deliverable := []*wire.Packet{pkt}

		// 吐出已缓冲的连续后继
		for {
			next, ok := t.buffered[t.expectedRecvSeq]
			if !ok {
				break
			}
			delete(t.buffered, t.expectedRecvSeq)
			t.markSeenLocked(t.expectedRecvSeq)
			t.expectedRecvSeq++
			deliverable = append(deliverable, next)
		}

		t.ackPending = true
		out := make([]*wire.Packet, 0, len(deliverable))
		for _, p := range deliverable {
			decoded, err := t.decodePayloadLocked(p)
			if err != nil {
				return out, err
			}
			out = append(out, decoded)
		}
		return out, nil

	case wire.SeqDiff(pkt.Seq, t.expectedRecvSeq) < t.cfg.WindowSize:
		// 窗口内的超前包缓冲等待
		t.buffered[pkt.Seq] = pkt
		t.ackPending = true
		return nil, nil

	default:
		// 窗口外，丢弃
		if t.metrics != nil {
			t.metrics.PacketsDropped.Inc()
		}
		return nil, nil
	}
}

// processAckLocked 释放 seq ≤ ack 的未确认包（滑动窗口模比较）
func (t *Transport) processAckLocked(ack uint16) {
	if len(t.unacked) == 0 {
		return
	}
	if wire.SeqAfter(ack, t.lastAckIn) {
		t.lastAckIn = ack
	}
	for seq := range t.unacked {
		if wire.SeqDiff(seq, ack) <= 0 {
			delete(t.unacked, seq)
		}
	}
}

func (t *Transport) markSeenLocked(seq uint16) {
	t.recentSeen[seq] = struct{}{}
	t.recentOrder = append(t.recentOrder, seq)
	for len(t.recentOrder) > 64 {
		oldest := t.recentOrder[0]
		t.recentOrder = t.recentOrder[1:]
		delete(t.recentSeen, oldest)
	}
}

// decodePayloadLocked 解密、解压载荷
func (t *Transport) decodePayloadLocked(pkt *wire.Packet) (*wire.Packet, error) {
	payload := pkt.Payload
	if pkt.Encrypted() {
		if t.cipher == nil {
			return nil, errors.Wrap(crypto.ErrCrypto, "encrypted packet before handshake")
		}
		payload = t.cipher.Apply(pkt.Seq, payload)
	}
	if pkt.Compressed() {
		plain, err := inflate(payload)
		if err != nil {
			return nil, errors.Wrap(err, "decompress payload")
		}
		payload = plain
	}
	out := *pkt
	out.Payload = payload
	return &out, nil
}

// sendAckLocked 发送一个纯确认数据报（不可靠的空 WorldState）
func (t *Transport) sendAckLocked() {
	_ = t.sendLocked(wire.MsgWorldState, nil, 0)
}

// FlushAck 把挂起的累积确认发出去。服务 tick 在分发完
// 一轮数据报后调用，避免每包一个确认。
func (t *Transport) FlushAck() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ackPending && !t.closed {
		t.sendAckLocked()
	}
}

// Tick 驱动重传、心跳与超时。
// 返回错误时会话应当进入 DISCONNECTING。
func (t *Transport) Tick() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}

	now := t.now()

	if now.Sub(t.lastActivity) >= t.cfg.Timeout {
		return ErrPeerTimeout
	}

	// 重传到期的未确认包
	for seq, up := range t.unacked {
		if now.Sub(up.lastSend) < t.cfg.Resend {
			continue
		}
		if up.retries >= t.cfg.MaxRetries {
			return errors.Wrapf(ErrTooManyRetries, "seq %d", seq)
		}
		up.retries++
		up.lastSend = now
		if t.metrics != nil {
			t.metrics.PacketsResent.Inc()
		}
		if err := t.output(up.data); err != nil {
			return err
		}
	}

	// 空闲心跳
	if now.Sub(t.lastActivity) >= t.cfg.PingInterval && now.Sub(t.lastPing) >= t.cfg.PingInterval {
		t.lastPing = now
		t.sendAckLocked()
	}

	if t.ackPending {
		t.sendAckLocked()
	}

	return nil
}

// UnackedCount 未确认包数量
func (t *Transport) UnackedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.unacked)
}

// Close 关闭传输：丢弃未确认包，后续收发幂等返回 ErrTransportClosed
func (t *Transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.unacked = make(map[uint16]*unackedPacket)
	t.buffered = make(map[uint16]*wire.Packet)
}

// Closed 传输是否已关闭
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// deflate flate 压缩
func deflate(data []byte) ([]byte, error) {
	buf := bytebuff.Get(len(data))
	defer bytebuff.Put(buf)

	w, err := flate.NewWriter(buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// inflate flate 解压
func inflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, wire.MaxPacketPayload+1))
	if err != nil {
		return nil, err
	}
	if len(out) > wire.MaxPacketPayload {
		return nil, errors.Wrap(wire.ErrWireFormat, "decompressed payload exceeds limit")
	}
	return out, nil
}
