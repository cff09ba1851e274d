package sessionkey

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hardlinedev/reality/pkg/logger"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()
	return NewTable(time.Hour, nil, logger.NewNop())
}

func TestMintAndValidate(t *testing.T) {
	tbl := newTestTable(t)

	key, err := tbl.Mint(100)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(key), 32)

	require.NoError(t, tbl.BindCharacter(key, 1, 5001))

	entry, err := tbl.Validate(key, 5001)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), entry.AccountID)
	assert.Equal(t, uint16(1), entry.WorldID)
}

// TestSecondAuthInvalidatesPrior 同账号再次认证作废旧键 (I3)
func TestSecondAuthInvalidatesPrior(t *testing.T) {
	tbl := newTestTable(t)

	first, err := tbl.Mint(100)
	require.NoError(t, err)
	require.NoError(t, tbl.BindCharacter(first, 1, 5001))

	second, err := tbl.Mint(100)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = tbl.Validate(first, 5001)
	assert.True(t, errors.Is(err, ErrExpired))
	assert.Equal(t, 1, tbl.Len())
}

func TestValidateUnboundCharacter(t *testing.T) {
	tbl := newTestTable(t)

	key, err := tbl.Mint(100)
	require.NoError(t, err)

	// 未绑定角色
	_, err = tbl.Validate(key, 5001)
	assert.True(t, errors.Is(err, ErrCharacterMismatch))

	require.NoError(t, tbl.BindCharacter(key, 1, 5001))
	_, err = tbl.Validate(key, 9999)
	assert.True(t, errors.Is(err, ErrCharacterMismatch))
}

func TestInvalidate(t *testing.T) {
	tbl := newTestTable(t)

	key, err := tbl.Mint(100)
	require.NoError(t, err)
	require.NoError(t, tbl.BindCharacter(key, 1, 5001))

	tbl.Invalidate(key)
	_, err = tbl.Validate(key, 5001)
	assert.True(t, errors.Is(err, ErrExpired))
	assert.Equal(t, 0, tbl.Len())
}

// TestSweepExpired 过期键被周期清理
func TestSweepExpired(t *testing.T) {
	tbl := newTestTable(t)

	base := time.Now()
	tbl.now = func() time.Time { return base }

	key, err := tbl.Mint(100)
	require.NoError(t, err)
	require.NoError(t, tbl.BindCharacter(key, 1, 5001))

	_, err = tbl.Mint(200)
	require.NoError(t, err)

	tbl.now = func() time.Time { return base.Add(2 * time.Hour) }
	assert.Equal(t, 2, tbl.Sweep())
	assert.Equal(t, 0, tbl.Len())

	_, err = tbl.Validate(key, 5001)
	assert.True(t, errors.Is(err, ErrExpired))
}
