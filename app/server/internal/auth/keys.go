package auth

import (
	"os"
	"path/filepath"

	"github.com/hardlinedev/reality/pkg/crypto"
	"github.com/hardlinedev/reality/pkg/logger"
)

// ServerKeys 认证服务持有的长期密钥：
// 凭证交换的 RSA 加密密钥对，以及 1024/2048 两套签名密钥对
// （客户端按协商的密钥位数选择信任的公钥验签）。
type ServerKeys struct {
	Crypt    *crypto.SessionKeyPair
	Sign1024 *crypto.SessionKeyPair
	Sign2048 *crypto.SessionKeyPair
}

// Signer 按位数选择签名密钥对
func (k *ServerKeys) Signer(bits int) *crypto.SessionKeyPair {
	if bits == 2048 {
		return k.Sign2048
	}
	return k.Sign1024
}

// LoadOrGenerateKeys 从密钥目录加载密钥，缺失时生成并落盘。
// 目录不存在时创建。
func LoadOrGenerateKeys(dir string, l logger.Logger) (*ServerKeys, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	load := func(name string, bits int) (*crypto.SessionKeyPair, error) {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return crypto.LoadSessionKeyPair(path)
		}

		l.Info("generating rsa key pair", "file", name, "bits", bits)
		pair, err := crypto.GenerateSessionKeyPair(bits)
		if err != nil {
			return nil, err
		}
		if err := pair.SavePEM(path); err != nil {
			return nil, err
		}
		return pair, nil
	}

	crypt, err := load("auth_crypt.pem", 2048)
	if err != nil {
		return nil, err
	}
	sign1024, err := load("auth_sign_1024.pem", 1024)
	if err != nil {
		return nil, err
	}
	sign2048, err := load("auth_sign_2048.pem", 2048)
	if err != nil {
		return nil, err
	}

	return &ServerKeys{
		Crypt:    crypt,
		Sign1024: sign1024,
		Sign2048: sign2048,
	}, nil
}
