package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHashPasswordDeterministic 相同输入得到相同的 40 字符十六进制散列
func TestHashPasswordDeterministic(t *testing.T) {
	h1 := HashPassword("somesalt", "redpill1")
	h2 := HashPassword("somesalt", "redpill1")

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 40)
}

func TestHashPasswordSaltMatters(t *testing.T) {
	assert.NotEqual(t,
		HashPassword("saltA", "redpill1"),
		HashPassword("saltB", "redpill1"),
	)
}

func TestVerifyPassword(t *testing.T) {
	salt, err := GenerateSalt(32)
	require.NoError(t, err)

	stored := HashPassword(salt, "redpill1")

	assert.True(t, VerifyPassword(salt, "redpill1", stored))
	assert.False(t, VerifyPassword(salt, "bluepill", stored))
	assert.False(t, VerifyPassword("othersalt", "redpill1", stored))
}

// TestGenerateSalt 盐为字母数字且长度下限 32
func TestGenerateSalt(t *testing.T) {
	for _, n := range []int{0, 16, 32, 64} {
		salt, err := GenerateSalt(n)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(salt), 32)
		for _, c := range salt {
			assert.Contains(t, saltAlphabet, string(c))
		}
	}

	a, _ := GenerateSalt(32)
	b, _ := GenerateSalt(32)
	assert.NotEqual(t, a, b)
}

func TestGenerateSessionKey(t *testing.T) {
	key, err := GenerateSessionKey()
	require.NoError(t, err)
	assert.Len(t, key, 48)

	other, err := GenerateSessionKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}
