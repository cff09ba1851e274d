package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOAEPRoundTrip(t *testing.T) {
	pair, err := GenerateSessionKeyPair(1024)
	require.NoError(t, err)

	plain := []byte("neo\x00redpill1\x00")
	ct, err := pair.EncryptOAEP(plain)
	require.NoError(t, err)
	assert.NotEqual(t, plain, ct)

	got, err := pair.DecryptOAEP(ct)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestOAEPTamperedCiphertext(t *testing.T) {
	pair, err := GenerateSessionKeyPair(1024)
	require.NoError(t, err)

	ct, err := pair.EncryptOAEP([]byte("payload"))
	require.NoError(t, err)

	ct[len(ct)-1] ^= 0xFF
	_, err = pair.DecryptOAEP(ct)
	assert.Error(t, err)
}

// TestSignModulus 模数签名可验证，篡改后拒绝
func TestSignModulus(t *testing.T) {
	signer, err := GenerateSessionKeyPair(1024)
	require.NoError(t, err)

	crypt, err := GenerateSessionKeyPair(2048)
	require.NoError(t, err)

	modulus := crypt.Modulus()
	sig, err := signer.SignModulus(modulus)
	require.NoError(t, err)
	assert.Len(t, sig, 128) // 1024 位签名 128 字节

	assert.NoError(t, signer.VerifyModulus(modulus, sig))

	bad := append([]byte{}, modulus...)
	bad[0] ^= 0x01
	assert.Error(t, signer.VerifyModulus(bad, sig))
}

func TestKeyPairPersistence(t *testing.T) {
	pair, err := GenerateSessionKeyPair(1024)
	require.NoError(t, err)

	path := t.TempDir() + "/sign.pem"
	require.NoError(t, pair.SavePEM(path))

	loaded, err := LoadSessionKeyPair(path)
	require.NoError(t, err)
	assert.Equal(t, pair.Modulus(), loaded.Modulus())
	assert.Equal(t, 1024, loaded.Bits())
}

func TestGenerateSessionKeyPairBadSize(t *testing.T) {
	_, err := GenerateSessionKeyPair(512)
	assert.Error(t, err)
}
