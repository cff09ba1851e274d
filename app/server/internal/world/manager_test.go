package world

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hardlinedev/reality/app/server/internal/model"
	"github.com/hardlinedev/reality/app/server/internal/nav"
	"github.com/hardlinedev/reality/pkg/logger"
	"github.com/hardlinedev/reality/pkg/wire"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(nav.NewManager(logger.NewNop()), logger.NewNop())
}

func npcAt(m *Manager, district uint8, x, y float64) *NPC {
	return NewNPC(m.NextObjectID(), district, 5000, "Agent", 10, model.LocationVector{X: x, Y: y})
}

// TestObjectIDMonotonic 对象 ID 单调不复用 (I1)
func TestObjectIDMonotonic(t *testing.T) {
	m := newTestManager(t)

	seen := make(map[uint32]bool)
	for i := 0; i < 100; i++ {
		id := m.NextObjectID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}

// TestAddRemoveObject 注册表与城区分片保持一致 (I2)
func TestAddRemoveObject(t *testing.T) {
	m := newTestManager(t)
	obj := npcAt(m, 1, 0, 0)

	require.NoError(t, m.AddObject(obj))
	assert.Equal(t, 1, m.ObjectCount())

	got, ok := m.GetObject(obj.ID())
	require.True(t, ok)
	assert.Equal(t, obj.ID(), got.ID())

	inDistrict := m.GetObjectsInDistrict(1)
	require.Len(t, inDistrict, 1)
	assert.Empty(t, m.GetObjectsInDistrict(2))

	// 重复注册被拒绝
	err := m.AddObject(obj)
	assert.True(t, errors.Is(err, ErrObjectExists))

	require.NoError(t, m.RemoveObject(obj.ID()))
	assert.Equal(t, 0, m.ObjectCount())
	assert.Empty(t, m.GetObjectsInDistrict(1))

	err = m.RemoveObject(obj.ID())
	assert.True(t, errors.Is(err, ErrObjectNotFound))
}

func TestGetObjectsInRange(t *testing.T) {
	m := newTestManager(t)

	near := npcAt(m, 1, 3, 4) // 距原点 5
	far := npcAt(m, 1, 30, 40)
	otherDistrict := npcAt(m, 2, 1, 1)
	require.NoError(t, m.AddObject(near))
	require.NoError(t, m.AddObject(far))
	require.NoError(t, m.AddObject(otherDistrict))

	origin := model.LocationVector{}

	got := m.GetObjectsInRange(origin, 10, 1)
	require.Len(t, got, 1)
	assert.Equal(t, near.ID(), got[0].ID())

	// 范围查询不跨城区
	assert.Empty(t, m.GetObjectsInRange(origin, 10, 3))
	got = m.GetObjectsInRange(origin, 100, 1)
	assert.Len(t, got, 2)
}

func TestGetNearestObject(t *testing.T) {
	m := newTestManager(t)

	a := npcAt(m, 1, 5, 0)
	b := npcAt(m, 1, 10, 0)
	hardline := NewHardline(m.NextObjectID(), 1, 7, "HL", model.LocationVector{X: 1, Y: 0})
	require.NoError(t, m.AddObject(a))
	require.NoError(t, m.AddObject(b))
	require.NoError(t, m.AddObject(hardline))

	origin := model.LocationVector{}

	got, ok := m.GetNearestObject(origin, wire.ObjectTypeNPC, 1, 100)
	require.True(t, ok)
	assert.Equal(t, a.ID(), got.ID())

	got, ok = m.GetNearestObject(origin, wire.ObjectTypeHardline, 1, 100)
	require.True(t, ok)
	assert.Equal(t, hardline.ID(), got.ID())

	// 超出 maxRange
	_, ok = m.GetNearestObject(origin, wire.ObjectTypeNPC, 1, 2)
	assert.False(t, ok)
}

func TestStateFlags(t *testing.T) {
	m := newTestManager(t)
	obj := npcAt(m, 1, 0, 0)

	obj.AddStateFlag(wire.PlayerStateCombat)
	obj.AddStateFlag(wire.PlayerStateRunning)
	assert.Equal(t, wire.PlayerStateCombat|wire.PlayerStateRunning, obj.StateFlags())

	obj.RemoveStateFlag(wire.PlayerStateCombat)
	assert.Equal(t, wire.PlayerStateRunning, obj.StateFlags())
}

func TestCreatePayloadPerType(t *testing.T) {
	m := newTestManager(t)

	npc := npcAt(m, 1, 0, 0)
	b := wire.NewByteBuffer()
	npc.WriteCreatePayload(b)

	name, err := b.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "Agent", name)

	visible, err := b.ReadBool()
	require.NoError(t, err)
	assert.True(t, visible)

	_, err = b.ReadUint32() // state flags
	require.NoError(t, err)
	_, err = b.ReadFloat32() // scale
	require.NoError(t, err)

	npcID, err := b.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(5000), npcID)

	level, err := b.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(10), level)
	assert.Equal(t, 0, b.Remaining())
}

// TestGetRandomSpawnPosition 声明出生点时从列表均匀抽取
func TestGetRandomSpawnPosition(t *testing.T) {
	m := newTestManager(t)

	m.mu.Lock()
	m.districts[1] = &DistrictData{
		ID:   1,
		Name: "Richland",
		Spawns: []SpawnDef{
			{X: 1, Y: 1},
			{X: 2, Y: 2},
		},
	}
	m.mu.Unlock()

	for i := 0; i < 8; i++ {
		pos, err := m.GetRandomSpawnPosition(1)
		require.NoError(t, err)
		assert.Contains(t, []float64{1, 2}, pos.X)
	}

	_, err := m.GetRandomSpawnPosition(9)
	assert.True(t, errors.Is(err, ErrUnknownDistrict))
}
