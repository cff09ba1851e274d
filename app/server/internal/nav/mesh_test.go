package nav

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hardlinedev/reality/app/server/internal/model"
)

// meshFromRows 由字符行构造网格，'1' 可行走，原点 (0,0)，格长 1
func meshFromRows(t *testing.T, rows ...string) *Mesh {
	t.Helper()
	width := len(rows[0])
	walkable := make([]bool, 0, width*len(rows))
	for _, row := range rows {
		require.Len(t, row, width)
		for _, c := range row {
			walkable = append(walkable, c == '1')
		}
	}
	mesh, err := NewMesh(1, 1.0, 0, 0, width, len(rows), walkable, AgentParams{})
	require.NoError(t, err)
	return mesh
}

func at(x, y float64) model.LocationVector {
	return model.LocationVector{X: x, Y: y}
}

func TestIsValid(t *testing.T) {
	mesh := meshFromRows(t,
		"111",
		"101",
		"111",
	)

	assert.True(t, mesh.IsValid(at(0.5, 0.5)))
	assert.False(t, mesh.IsValid(at(1.5, 1.5))) // 中间的洞
	assert.False(t, mesh.IsValid(at(-1, 0)))   // 网格外
	assert.False(t, mesh.IsValid(at(3.5, 0.5)))
}

func TestClosestValid(t *testing.T) {
	mesh := meshFromRows(t,
		"111",
		"101",
		"111",
	)

	// 洞中心吸附到相邻可行走格
	snapped := mesh.ClosestValid(at(1.5, 1.5), 5)
	assert.True(t, mesh.IsValid(snapped))

	// 已有效的位置原样返回
	pos := at(0.5, 0.5)
	assert.Equal(t, pos, mesh.ClosestValid(pos, 5))

	// 搜索半径不足时原样返回
	far := at(100, 100)
	assert.Equal(t, far, mesh.ClosestValid(far, 2))
}

func TestLineOfSight(t *testing.T) {
	mesh := meshFromRows(t,
		"11111",
		"11011",
		"11111",
	)

	// 同一行直线可见
	assert.True(t, mesh.HasLineOfSight(at(0.5, 0.5), at(4.5, 0.5)))
	// 穿过中间障碍不可见
	assert.False(t, mesh.HasLineOfSight(at(0.5, 1.5), at(4.5, 1.5)))
}

func TestFindPathStraight(t *testing.T) {
	mesh := meshFromRows(t,
		"11111",
		"11111",
		"11111",
	)

	path, err := mesh.FindPath(at(0.5, 1.5), at(4.5, 1.5))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(path), 2)
	assert.Equal(t, at(0.5, 1.5), path[0])
	assert.Equal(t, at(4.5, 1.5), path[len(path)-1])
	// 无障碍时化简为两点
	assert.Len(t, path, 2)
}

// TestFindPathAroundWall 路径绕过墙体且每段都有视线
func TestFindPathAroundWall(t *testing.T) {
	mesh := meshFromRows(t,
		"11111",
		"11101",
		"10101",
		"10111",
		"11111",
	)

	start := at(0.5, 0.5)
	end := at(4.5, 4.5)
	path, err := mesh.FindPath(start, end)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(path), 2)

	for i := 1; i < len(path); i++ {
		assert.True(t, mesh.HasLineOfSight(path[i-1], path[i]),
			"segment %d lacks line of sight", i)
	}
}

func TestFindPathUnreachable(t *testing.T) {
	mesh := meshFromRows(t,
		"110011",
		"110011",
	)

	_, err := mesh.FindPath(at(0.5, 0.5), at(5.5, 0.5))
	assert.True(t, errors.Is(err, ErrNoPath))
}

// TestNoCornerCutting 对角移动不允许穿墙角
func TestNoCornerCutting(t *testing.T) {
	mesh := meshFromRows(t,
		"10",
		"01",
	)

	_, err := mesh.FindPath(at(0.5, 0.5), at(1.5, 1.5))
	assert.True(t, errors.Is(err, ErrNoPath))
}
