package wire

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// 游戏数据报格式:
// [flags:u8][seq:u16][ack:u16][type:u16][length:u32][payload:length]
// ENCRYPTED 标志置位时 payload 为密文，帧头始终是明文。

// PacketHeaderSize 游戏数据报头长度
const PacketHeaderSize = 11

// MaxPacketPayload 单数据报最大载荷
const MaxPacketPayload = 60 * 1024

// Packet 一个游戏数据报
type Packet struct {
	Flags   uint8
	Seq     uint16
	Ack     uint16
	Type    uint16
	Payload []byte
}

// Reliable 是否为可靠数据报
func (p *Packet) Reliable() bool {
	return p.Flags&PacketFlagReliable != 0
}

// Encrypted 载荷是否加密
func (p *Packet) Encrypted() bool {
	return p.Flags&PacketFlagEncrypted != 0
}

// Compressed 载荷是否压缩
func (p *Packet) Compressed() bool {
	return p.Flags&PacketFlagCompressed != 0
}

// EncodePacket 编码一个游戏数据报
func EncodePacket(p *Packet) []byte {
	out := make([]byte, PacketHeaderSize+len(p.Payload))
	out[0] = p.Flags
	binary.LittleEndian.PutUint16(out[1:3], p.Seq)
	binary.LittleEndian.PutUint16(out[3:5], p.Ack)
	binary.LittleEndian.PutUint16(out[5:7], p.Type)
	binary.LittleEndian.PutUint32(out[7:11], uint32(len(p.Payload)))
	copy(out[PacketHeaderSize:], p.Payload)
	return out
}

// DecodePacket 解码一个游戏数据报。
// UDP 数据报自带边界，长度字段与实际载荷不符即为格式错误。
func DecodePacket(data []byte) (*Packet, error) {
	if len(data) < PacketHeaderSize {
		return nil, errors.Wrapf(ErrWireFormat, "datagram %d bytes, need header of %d", len(data), PacketHeaderSize)
	}

	length := binary.LittleEndian.Uint32(data[7:11])
	if length > MaxPacketPayload {
		return nil, errors.Wrapf(ErrWireFormat, "packet payload %d exceeds limit", length)
	}
	if len(data) != PacketHeaderSize+int(length) {
		return nil, errors.Wrapf(ErrWireFormat, "packet length field %d, datagram carries %d", length, len(data)-PacketHeaderSize)
	}

	payload := make([]byte, length)
	copy(payload, data[PacketHeaderSize:])

	return &Packet{
		Flags:   data[0],
		Seq:     binary.LittleEndian.Uint16(data[1:3]),
		Ack:     binary.LittleEndian.Uint16(data[3:5]),
		Type:    binary.LittleEndian.Uint16(data[5:7]),
		Payload: payload,
	}, nil
}

// SeqBefore 判断 a 是否在 b 之前，u16 回绕安全（半空间比较）。
func SeqBefore(a, b uint16) bool {
	return int16(a-b) < 0
}

// SeqAfter 判断 a 是否在 b 之后，u16 回绕安全。
func SeqAfter(a, b uint16) bool {
	return int16(a-b) > 0
}

// SeqDiff 计算 a-b 的有符号距离
func SeqDiff(a, b uint16) int {
	return int(int16(a - b))
}
