package bytebuff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPutRoundTrip(t *testing.T) {
	p := NewPool()

	buf := p.Get(128)
	require.NotNil(t, buf)
	assert.GreaterOrEqual(t, buf.Cap(), 128)

	buf.WriteString("payload")
	p.Put(buf)

	// 归还后的 buffer 被重置
	buf2 := p.Get(128)
	assert.Equal(t, 0, buf2.Len())
}

func TestSelectPool(t *testing.T) {
	assert.Equal(t, 0, selectPool(0))
	assert.Equal(t, 0, selectPool(64))
	assert.Equal(t, 1, selectPool(65))
	assert.Equal(t, numPools-1, selectPool(1<<19))
}

func TestPutNilAndOversized(t *testing.T) {
	p := NewPool()
	p.Put(nil) // 不崩溃

	big := p.Get(2 << 20)
	p.Put(big) // 超限不归还

	_, puts, _ := p.Stats()
	assert.Equal(t, uint64(0), puts)
}
