package crypto

import (
	"crypto/hmac"
	"crypto/sha1"
)

// udpCipherLabel 数据报加密密钥的派生标签
const udpCipherLabel = "udp-cipher"

// DeriveCipherKey 从会话密钥派生 16 字节的数据报加密密钥:
// HMAC-SHA1(key=sessionKey, label) 截断到 16 字节。
func DeriveCipherKey(sessionKey string) []byte {
	mac := hmac.New(sha1.New, []byte(sessionKey))
	mac.Write([]byte(udpCipherLabel))
	return mac.Sum(nil)[:16]
}
