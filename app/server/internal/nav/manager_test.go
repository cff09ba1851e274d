package nav

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hardlinedev/reality/app/server/internal/model"
	"github.com/hardlinedev/reality/pkg/checksum"
	"github.com/hardlinedev/reality/pkg/logger"
)

func writeMeshFile(t *testing.T, mf *meshFile, withChecksum bool) string {
	t.Helper()

	if withChecksum {
		mf.Checksum = 0
		canonical, err := json.Marshal(mf)
		require.NoError(t, err)
		mf.Checksum = checksum.Sum64(canonical)
	}

	data, err := json.Marshal(mf)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "mesh.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func sampleMeshFile() *meshFile {
	return &meshFile{
		District: 1,
		CellSize: 1.0,
		Width:    4,
		Height:   3,
		Agent:    AgentParams{Height: 2, Radius: 0.5},
		Rows: []string{
			"1111",
			"1001",
			"1111",
		},
	}
}

func TestLoadMesh(t *testing.T) {
	m := NewManager(logger.NewNop())
	path := writeMeshFile(t, sampleMeshFile(), true)

	require.NoError(t, m.LoadMesh(1, path))
	require.True(t, m.IsLoaded(1))
	assert.False(t, m.IsLoaded(2))

	assert.True(t, m.IsPositionValid(1, model.LocationVector{X: 0.5, Y: 0.5}))
	assert.False(t, m.IsPositionValid(1, model.LocationVector{X: 1.5, Y: 1.5}))
}

// TestLoadMeshChecksumMismatch 篡改数据被校验和拒绝
func TestLoadMeshChecksumMismatch(t *testing.T) {
	m := NewManager(logger.NewNop())

	mf := sampleMeshFile()
	path := writeMeshFile(t, mf, true)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := []byte(string(data))
	// 改掉数据中的第一个 '0'（落在 origin_x 上）
	for i := range tampered {
		if tampered[i] == '0' {
			tampered[i] = '1'
			break
		}
	}
	require.NoError(t, os.WriteFile(path, tampered, 0o644))

	err = m.LoadMesh(1, path)
	assert.True(t, errors.Is(err, ErrBadMeshData))
}

func TestLoadMeshBadDimensions(t *testing.T) {
	m := NewManager(logger.NewNop())

	mf := sampleMeshFile()
	mf.Rows = mf.Rows[:2]
	path := writeMeshFile(t, mf, false)

	err := m.LoadMesh(1, path)
	assert.True(t, errors.Is(err, ErrBadMeshData))
}

// TestUnloadedDistrictPermissive 未加载网格的城区不做位置限制
func TestUnloadedDistrictPermissive(t *testing.T) {
	m := NewManager(logger.NewNop())

	pos := model.LocationVector{X: 123, Y: 456}
	assert.True(t, m.IsPositionValid(9, pos))
	assert.True(t, m.HasLineOfSight(9, pos, model.LocationVector{}))
	assert.Equal(t, pos, m.ClosestValidPosition(9, pos, 10))

	_, err := m.FindPath(9, pos, model.LocationVector{})
	assert.True(t, errors.Is(err, ErrNoMesh))
}

func TestRandomPoint(t *testing.T) {
	m := NewManager(logger.NewNop())
	path := writeMeshFile(t, sampleMeshFile(), false)
	require.NoError(t, m.LoadMesh(1, path))

	center := model.LocationVector{X: 2, Y: 1}
	for i := 0; i < 16; i++ {
		p := m.RandomPoint(1, center, 2)
		assert.True(t, m.IsPositionValid(1, p), "sampled point %v off mesh", p)
	}
}
