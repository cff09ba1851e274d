// Package crypto 实现会话建立与数据报加密所需的密码学原语：
// 账号口令散列、RSA 握手、会话密钥派生和 Twofish-CTR 流加密。
package crypto

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
)

const saltAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// HashPassword 计算 SHA1_hex(salt ∥ password)，40 个十六进制字符。
func HashPassword(salt, password string) string {
	sum := sha1.Sum([]byte(salt + password))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword 常量时间比较口令散列
func VerifyPassword(salt, password, storedHash string) bool {
	computed := HashPassword(salt, password)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// GenerateSalt 生成 length 个字母数字字符的随机盐，length 不低于 32。
func GenerateSalt(length int) (string, error) {
	if length < 32 {
		length = 32
	}
	return randomAlphanumeric(length)
}

// GenerateSessionKey 生成会话密钥：48 个可打印字符的随机串。
func GenerateSessionKey() (string, error) {
	return randomAlphanumeric(48)
}

func randomAlphanumeric(length int) (string, error) {
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range raw {
		out[i] = saltAlphabet[int(b)%len(saltAlphabet)]
	}
	return string(out), nil
}
