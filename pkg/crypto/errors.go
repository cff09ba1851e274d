package crypto

import "github.com/cockroachdb/errors"

var (
	// ErrCrypto 加解密或签名验证失败。统一的对外错误，
	// 不区分具体原因，避免给对端提供预言机。
	ErrCrypto = errors.New("crypto: operation failed")
	// ErrKeySize 密钥长度非法
	ErrKeySize = errors.New("crypto: invalid key size")
)
