package crypto

import (
	cryptolib "crypto"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/cockroachdb/errors"
)

// SessionKeyPair 会话握手使用的 RSA 密钥对。
// 加密密钥对用于 OAEP 凭证交换，签名密钥对用于对公钥模数背书。
type SessionKeyPair struct {
	private *rsa.PrivateKey
}

// GenerateSessionKeyPair 生成指定位数的 RSA 密钥对 (1024/2048)
func GenerateSessionKeyPair(bits int) (*SessionKeyPair, error) {
	if bits != 1024 && bits != 2048 {
		return nil, errors.Wrapf(ErrKeySize, "%d bits", bits)
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.Wrap(ErrCrypto, err.Error())
	}
	return &SessionKeyPair{private: key}, nil
}

// LoadSessionKeyPair 从 PEM 文件加载 RSA 私钥 (PKCS#1)
func LoadSessionKeyPair(path string) (*SessionKeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.Wrapf(ErrCrypto, "no PEM block in %s", path)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(ErrCrypto, err.Error())
	}
	return &SessionKeyPair{private: key}, nil
}

// SavePEM 将私钥写入 PEM 文件
func (k *SessionKeyPair) SavePEM(path string) error {
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(k.private),
	}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0o600)
}

// Bits 返回密钥位数
func (k *SessionKeyPair) Bits() int {
	return k.private.N.BitLen()
}

// Modulus 返回公钥模数的大端字节串
func (k *SessionKeyPair) Modulus() []byte {
	return k.private.N.Bytes()
}

// PublicExponent 返回公钥指数
func (k *SessionKeyPair) PublicExponent() uint32 {
	return uint32(k.private.E)
}

// DecryptOAEP 用私钥解密 OAEP-SHA1 密文（凭证交换的服务端方向）
func (k *SessionKeyPair) DecryptOAEP(ciphertext []byte) ([]byte, error) {
	plain, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, k.private, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(ErrCrypto, "oaep decrypt")
	}
	return plain, nil
}

// EncryptOAEP 用公钥加密（测试客户端方向）
func (k *SessionKeyPair) EncryptOAEP(plaintext []byte) ([]byte, error) {
	out, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, &k.private.PublicKey, plaintext, nil)
	if err != nil {
		return nil, errors.Wrap(ErrCrypto, "oaep encrypt")
	}
	return out, nil
}

// SignModulus 对 message 做 PKCS1v15-MD5 签名。
// 认证服务用长期签名密钥对广告公钥的模数背书。
func (k *SessionKeyPair) SignModulus(message []byte) ([]byte, error) {
	digest := md5.Sum(message)
	sig, err := rsa.SignPKCS1v15(rand.Reader, k.private, cryptolib.MD5, digest[:])
	if err != nil {
		return nil, errors.Wrap(ErrCrypto, "pkcs1v15 sign")
	}
	return sig, nil
}

// VerifyModulus 校验 PKCS1v15-MD5 签名（客户端方向）
func (k *SessionKeyPair) VerifyModulus(message, sig []byte) error {
	digest := md5.Sum(message)
	if err := rsa.VerifyPKCS1v15(&k.private.PublicKey, cryptolib.MD5, digest[:], sig); err != nil {
		return errors.Wrap(ErrCrypto, "pkcs1v15 verify")
	}
	return nil
}
