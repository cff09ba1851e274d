package wire

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// TCP 帧格式: [type:u16 LE][length:u32 LE][payload:length]
// length 不含 6 字节帧头。Auth 和 Margin 服务共用。

// FrameHeaderSize TCP 帧头长度
const FrameHeaderSize = 6

// MaxFramePayload 单帧最大载荷，超过视为格式错误
const MaxFramePayload = 1 << 20

// Frame 一个完整的 TCP 帧
type Frame struct {
	Type    uint16
	Payload []byte
}

// EncodeFrame 编码一个 TCP 帧
func EncodeFrame(msgType uint16, payload []byte) []byte {
	out := make([]byte, FrameHeaderSize+len(payload))
	binary.LittleEndian.PutUint16(out[0:2], msgType)
	binary.LittleEndian.PutUint32(out[2:6], uint32(len(payload)))
	copy(out[FrameHeaderSize:], payload)
	return out
}

// DecodeFrame 尝试从 data 头部解出一个完整帧。
// 返回帧和消耗的字节数；数据不足一个完整帧时返回 (nil, 0, nil)，
// 调用方保留数据等待更多字节。
func DecodeFrame(data []byte) (*Frame, int, error) {
	if len(data) < FrameHeaderSize {
		return nil, 0, nil
	}

	msgType := binary.LittleEndian.Uint16(data[0:2])
	length := binary.LittleEndian.Uint32(data[2:6])

	if length > MaxFramePayload {
		return nil, 0, errors.Wrapf(ErrWireFormat, "frame payload %d exceeds limit", length)
	}

	total := FrameHeaderSize + int(length)
	if len(data) < total {
		return nil, 0, nil
	}

	payload := make([]byte, length)
	copy(payload, data[FrameHeaderSize:total])

	return &Frame{Type: msgType, Payload: payload}, total, nil
}
