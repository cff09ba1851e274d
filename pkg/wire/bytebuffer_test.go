package wire

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestByteBufferRoundTrip 基本类型写读往返
func TestByteBufferRoundTrip(t *testing.T) {
	b := NewByteBuffer()

	b.WriteUint8(0xAB)
	b.WriteUint16(0xBEEF)
	b.WriteUint32(0xDEADBEEF)
	b.WriteUint64(0x0123456789ABCDEF)
	b.WriteFloat32(3.5)
	b.WriteFloat64(-123.0625)
	b.WriteBool(true)
	b.WriteString("Neo")

	v8, err := b.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xAB), v8)

	v16, err := b.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), v16)

	v32, err := b.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v32)

	v64, err := b.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0123456789ABCDEF), v64)

	f32, err := b.ReadFloat32()
	require.NoError(t, err)
	assert.Equal(t, float32(3.5), f32)

	f64, err := b.ReadFloat64()
	require.NoError(t, err)
	assert.Equal(t, -123.0625, f64)

	flag, err := b.ReadBool()
	require.NoError(t, err)
	assert.True(t, flag)

	s, err := b.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "Neo", s)

	assert.Equal(t, 0, b.Remaining())
}

// TestByteBufferPositions 写入推进 wpos，读取推进 rpos
func TestByteBufferPositions(t *testing.T) {
	b := NewByteBuffer()

	b.WriteUint32(1)
	assert.Equal(t, 4, b.Len())

	b.WriteString("ab")
	assert.Equal(t, 7, b.Len()) // 2 字节内容 + 零结尾

	_, err := b.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, 4, b.RPos())

	_, err = b.ReadString()
	require.NoError(t, err)
	assert.Equal(t, 7, b.RPos())
}

// TestByteBufferShortRead 读取越界返回 ErrShortRead
func TestByteBufferShortRead(t *testing.T) {
	b := NewByteBufferFrom([]byte{0x01, 0x02})

	_, err := b.ReadUint32()
	assert.True(t, errors.Is(err, ErrShortRead))

	// 失败的读取不移动 rpos
	v, err := b.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0201), v)
}

// TestByteBufferUnterminatedString 缺少零结尾
func TestByteBufferUnterminatedString(t *testing.T) {
	b := NewByteBufferFrom([]byte("no terminator"))

	_, err := b.ReadString()
	assert.True(t, errors.Is(err, ErrShortRead))
}

// TestByteBufferEmptyString 空字符串往返
func TestByteBufferEmptyString(t *testing.T) {
	b := NewByteBuffer()
	b.WriteString("")
	assert.Equal(t, 1, b.Len())

	s, err := b.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "", s)
}

// TestByteBufferLittleEndian 字节序固定为小端
func TestByteBufferLittleEndian(t *testing.T) {
	b := NewByteBuffer()
	b.WriteUint16(0x1001)
	assert.Equal(t, []byte{0x01, 0x10}, b.Bytes())
}
