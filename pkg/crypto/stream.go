package crypto

import (
	"crypto/cipher"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/twofish"
)

// StreamCipher 数据报载荷的确定性流加密：Twofish 分组 CTR 模式。
// 计数器块以数据报序号为前缀，同一会话内每个序号得到唯一的
// 密钥流；序号空间回绕前必须轮换会话密钥。
type StreamCipher struct {
	block cipher.Block
}

// NewStreamCipher 创建流加密器，key 必须为 16 字节（DeriveCipherKey 的输出）。
func NewStreamCipher(key []byte) (*StreamCipher, error) {
	if len(key) != 16 {
		return nil, errors.Wrapf(ErrKeySize, "stream key %d bytes, want 16", len(key))
	}
	block, err := twofish.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(ErrCrypto, err.Error())
	}
	return &StreamCipher{block: block}, nil
}

// Apply 用 seq 对应的密钥流对 data 做原地异或。
// CTR 加解密同构，发送和接收两侧调用同一个函数。
func (s *StreamCipher) Apply(seq uint16, data []byte) []byte {
	iv := make([]byte, twofish.BlockSize)
	binary.LittleEndian.PutUint16(iv[0:2], seq)

	out := make([]byte, len(data))
	cipher.NewCTR(s.block, iv).XORKeyStream(out, data)
	return out
}
