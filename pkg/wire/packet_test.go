package wire

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	p := &Packet{
		Flags:   PacketFlagReliable | PacketFlagEncrypted,
		Seq:     42,
		Ack:     41,
		Type:    MsgPlayerCommand,
		Payload: []byte{0x02, 0x00, 'h', 'i', 0x00},
	}

	data := EncodePacket(p)
	assert.Equal(t, PacketHeaderSize+len(p.Payload), len(data))

	got, err := DecodePacket(data)
	require.NoError(t, err)
	assert.Equal(t, p.Flags, got.Flags)
	assert.Equal(t, p.Seq, got.Seq)
	assert.Equal(t, p.Ack, got.Ack)
	assert.Equal(t, p.Type, got.Type)
	assert.Equal(t, p.Payload, got.Payload)
	assert.True(t, got.Reliable())
	assert.True(t, got.Encrypted())
	assert.False(t, got.Compressed())
}

func TestPacketTruncated(t *testing.T) {
	data := EncodePacket(&Packet{Type: MsgWorldState, Payload: []byte{1, 2, 3}})

	_, err := DecodePacket(data[:len(data)-1])
	assert.True(t, errors.Is(err, ErrWireFormat))

	_, err = DecodePacket(data[:5])
	assert.True(t, errors.Is(err, ErrWireFormat))
}

// TestSeqCompareWraparound 序号回绕时比较仍正确
func TestSeqCompareWraparound(t *testing.T) {
	assert.True(t, SeqBefore(0xFFFF, 0x0000))
	assert.True(t, SeqAfter(0x0000, 0xFFFF))
	assert.True(t, SeqBefore(0xFFF0, 0x0010))
	assert.False(t, SeqBefore(0x0010, 0xFFF0))

	assert.Equal(t, 1, SeqDiff(0x0000, 0xFFFF))
	assert.Equal(t, -1, SeqDiff(0xFFFF, 0x0000))
	assert.Equal(t, 0, SeqDiff(0x1234, 0x1234))
}
