// Package wire 实现服务间共用的二进制编解码：小端序基本类型、
// 零结尾字符串、TCP 帧头和游戏数据报头。
package wire

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

// ByteBuffer 小端序读写缓冲。
// 写入自动扩容；读取越界返回 ErrShortRead。
// rpos/wpos 独立推进，同一个缓冲可以边写边读。
type ByteBuffer struct {
	data []byte
	rpos int
}

// NewByteBuffer 创建空缓冲
func NewByteBuffer() *ByteBuffer {
	return &ByteBuffer{data: make([]byte, 0, 64)}
}

// NewByteBufferFrom 包装已有数据用于读取，不拷贝
func NewByteBufferFrom(data []byte) *ByteBuffer {
	return &ByteBuffer{data: data}
}

// Bytes 返回已写入的全部数据
func (b *ByteBuffer) Bytes() []byte {
	return b.data
}

// Len 返回已写入的字节数 (wpos)
func (b *ByteBuffer) Len() int {
	return len(b.data)
}

// Remaining 返回剩余可读字节数
func (b *ByteBuffer) Remaining() int {
	return len(b.data) - b.rpos
}

// RPos 返回当前读位置
func (b *ByteBuffer) RPos() int {
	return b.rpos
}

// SeekR 设置读位置
func (b *ByteBuffer) SeekR(pos int) error {
	if pos < 0 || pos > len(b.data) {
		return errors.Wrapf(ErrShortRead, "seek to %d of %d", pos, len(b.data))
	}
	b.rpos = pos
	return nil
}

// Reset 清空缓冲并复位读写位置
func (b *ByteBuffer) Reset() {
	b.data = b.data[:0]
	b.rpos = 0
}

func (b *ByteBuffer) take(n int) ([]byte, error) {
	if b.rpos+n > len(b.data) {
		return nil, errors.Wrapf(ErrShortRead, "need %d bytes at %d, have %d", n, b.rpos, len(b.data))
	}
	out := b.data[b.rpos : b.rpos+n]
	b.rpos += n
	return out, nil
}

// WriteUint8 写入 u8
func (b *ByteBuffer) WriteUint8(v uint8) {
	b.data = append(b.data, v)
}

// WriteUint16 写入小端序 u16
func (b *ByteBuffer) WriteUint16(v uint16) {
	b.data = binary.LittleEndian.AppendUint16(b.data, v)
}

// WriteUint32 写入小端序 u32
func (b *ByteBuffer) WriteUint32(v uint32) {
	b.data = binary.LittleEndian.AppendUint32(b.data, v)
}

// WriteUint64 写入小端序 u64
func (b *ByteBuffer) WriteUint64(v uint64) {
	b.data = binary.LittleEndian.AppendUint64(b.data, v)
}

// WriteFloat32 写入小端序 f32
func (b *ByteBuffer) WriteFloat32(v float32) {
	b.WriteUint32(math.Float32bits(v))
}

// WriteFloat64 写入小端序 f64
func (b *ByteBuffer) WriteFloat64(v float64) {
	b.WriteUint64(math.Float64bits(v))
}

// WriteBool 写入 bool (1 字节)
func (b *ByteBuffer) WriteBool(v bool) {
	if v {
		b.WriteUint8(1)
	} else {
		b.WriteUint8(0)
	}
}

// WriteString 写入零结尾字符串
func (b *ByteBuffer) WriteString(s string) {
	b.data = append(b.data, s...)
	b.data = append(b.data, 0)
}

// WriteBytes 写入原始字节
func (b *ByteBuffer) WriteBytes(p []byte) {
	b.data = append(b.data, p...)
}

// ReadUint8 读取 u8
func (b *ByteBuffer) ReadUint8() (uint8, error) {
	p, err := b.take(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

// ReadUint16 读取小端序 u16
func (b *ByteBuffer) ReadUint16() (uint16, error) {
	p, err := b.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(p), nil
}

// ReadUint32 读取小端序 u32
func (b *ByteBuffer) ReadUint32() (uint32, error) {
	p, err := b.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

// ReadUint64 读取小端序 u64
func (b *ByteBuffer) ReadUint64() (uint64, error) {
	p, err := b.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

// ReadFloat32 读取小端序 f32
func (b *ByteBuffer) ReadFloat32() (float32, error) {
	v, err := b.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadFloat64 读取小端序 f64
func (b *ByteBuffer) ReadFloat64() (float64, error) {
	v, err := b.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadBool 读取 bool
func (b *ByteBuffer) ReadBool() (bool, error) {
	v, err := b.ReadUint8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// ReadString 读取零结尾字符串
func (b *ByteBuffer) ReadString() (string, error) {
	for i := b.rpos; i < len(b.data); i++ {
		if b.data[i] == 0 {
			s := string(b.data[b.rpos:i])
			b.rpos = i + 1
			return s, nil
		}
	}
	return "", errors.Wrap(ErrShortRead, "unterminated string")
}

// ReadBytes 读取 n 个原始字节
func (b *ByteBuffer) ReadBytes(n int) ([]byte, error) {
	p, err := b.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, p)
	return out, nil
}

// ReadRemaining 读取全部剩余字节
func (b *ByteBuffer) ReadRemaining() []byte {
	out := make([]byte, b.Remaining())
	copy(out, b.data[b.rpos:])
	b.rpos = len(b.data)
	return out
}
