package world

import (
	"math/rand"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hardlinedev/reality/app/server/internal/model"
	"github.com/hardlinedev/reality/app/server/internal/nav"
	"github.com/hardlinedev/reality/pkg/logger"
	"github.com/hardlinedev/reality/pkg/wire"
)

var (
	// ErrObjectExists 对象 ID 已注册
	ErrObjectExists = errors.New("world: object already registered")
	// ErrObjectNotFound 对象不存在
	ErrObjectNotFound = errors.New("world: object not found")
	// ErrUnknownDistrict 城区未加载
	ErrUnknownDistrict = errors.New("world: unknown district")
)

// firstObjectID 对象 ID 从 1000 起步，1000 以下留给系统保留段
const firstObjectID = 1000

// Manager 世界管理器。对象注册表按城区分片，
// 空间查询在城区内做距离过滤，寻路与视线委托导航网格。
type Manager struct {
	logger logger.Logger
	nav    *nav.Manager

	nextObjectID atomic.Uint32

	mu        sync.RWMutex
	objects   map[uint32]Object
	districts map[uint8]*DistrictData
	// districtObjects 维护不变量 I2: 对象在且仅在其城区的分片里
	districtObjects map[uint8]map[uint32]Object

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewManager 创建世界管理器
func NewManager(navMgr *nav.Manager, l logger.Logger) *Manager {
	m := &Manager{
		logger:          l.Named("world.manager"),
		nav:             navMgr,
		objects:         make(map[uint32]Object),
		districts:       make(map[uint8]*DistrictData),
		districtObjects: make(map[uint8]map[uint32]Object),
		rng:             rand.New(rand.NewSource(rand.Int63())),
	}
	m.nextObjectID.Store(firstObjectID)
	return m
}

// NextObjectID 分配进程内单调递增的对象 ID (I1)
func (m *Manager) NextObjectID() uint32 {
	return m.nextObjectID.Add(1) - 1
}

// LoadDistricts 并行加载数据目录下的全部城区：静态数据、
// 导航网格和静态对象。
func (m *Manager) LoadDistricts(dataDir string) error {
	files, err := discoverDistrictFiles(dataDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		m.logger.Warn("no district files found", "data_dir", dataDir)
		return nil
	}

	var g errgroup.Group
	loaded := make([]*DistrictData, len(files))

	for i, path := range files {
		g.Go(func() error {
			d, err := loadDistrictFile(path)
			if err != nil {
				return err
			}
			if d.NavMeshFile != "" {
				meshPath := filepath.Join(dataDir, d.NavMeshFile)
				if err := m.nav.LoadMesh(d.ID, meshPath); err != nil {
					return err
				}
			}
			loaded[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, d := range loaded {
		m.mu.Lock()
		m.districts[d.ID] = d
		m.mu.Unlock()
		m.spawnStaticObjects(d)
		m.logger.Info("district loaded",
			"district", d.ID,
			"name", d.Name,
			"hardlines", len(d.Hardlines),
			"objects", len(d.Objects),
		)
	}

	return nil
}

// spawnStaticObjects 注册城区数据声明的静态对象
func (m *Manager) spawnStaticObjects(d *DistrictData) {
	for _, h := range d.Hardlines {
		obj := NewHardline(m.NextObjectID(), d.ID, h.ID, h.Name, h.Location())
		if err := m.AddObject(obj); err != nil {
			m.logger.Error("failed to add hardline", "district", d.ID, "name", h.Name, "error", err)
		}
	}
	for _, def := range d.Objects {
		var obj Object
		if def.Type == wire.ObjectTypeNPC {
			obj = NewNPC(m.NextObjectID(), d.ID, def.NpcID, def.Name, def.Level, def.Location())
		} else {
			obj = NewInteractive(m.NextObjectID(), def.Type, d.ID, 0, def.Name, def.Location())
		}
		if err := m.AddObject(obj); err != nil {
			m.logger.Error("failed to add static object", "district", d.ID, "name", def.Name, "error", err)
		}
	}
}

// District 返回城区静态数据
func (m *Manager) District(districtID uint8) *DistrictData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.districts[districtID]
}

// AddObject 注册对象。对象 ID 必须唯一。
func (m *Manager) AddObject(obj Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.objects[obj.ID()]; exists {
		return errors.Wrapf(ErrObjectExists, "id %d", obj.ID())
	}

	m.objects[obj.ID()] = obj
	shard := m.districtObjects[obj.District()]
	if shard == nil {
		shard = make(map[uint32]Object)
		m.districtObjects[obj.District()] = shard
	}
	shard[obj.ID()] = obj
	return nil
}

// RemoveObject 注销对象，可从任意线程调用
func (m *Manager) RemoveObject(objectID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[objectID]
	if !ok {
		return errors.Wrapf(ErrObjectNotFound, "id %d", objectID)
	}

	delete(m.objects, objectID)
	if shard := m.districtObjects[obj.District()]; shard != nil {
		delete(shard, objectID)
	}
	return nil
}

// ChangeObjectDistrict 把对象迁移到新城区，分片同步更新 (I2)
func (m *Manager) ChangeObjectDistrict(objectID uint32, newDistrict uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[objectID]
	if !ok {
		return errors.Wrapf(ErrObjectNotFound, "id %d", objectID)
	}

	old := obj.District()
	if old == newDistrict {
		return nil
	}

	mover, ok := obj.(interface{ setDistrict(uint8) })
	if !ok {
		return errors.Wrapf(ErrObjectNotFound, "object %d does not support migration", objectID)
	}

	if shard := m.districtObjects[old]; shard != nil {
		delete(shard, objectID)
	}
	mover.setDistrict(newDistrict)
	shard := m.districtObjects[newDistrict]
	if shard == nil {
		shard = make(map[uint32]Object)
		m.districtObjects[newDistrict] = shard
	}
	shard[objectID] = obj
	return nil
}

// GetObject 按 ID 查对象
func (m *Manager) GetObject(objectID uint32) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[objectID]
	return obj, ok
}

// ObjectCount 当前注册对象数
func (m *Manager) ObjectCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// GetObjectsInDistrict 返回城区内全部对象
func (m *Manager) GetObjectsInDistrict(districtID uint8) []Object {
	m.mu.RLock()
	defer m.mu.RUnlock()

	shard := m.districtObjects[districtID]
	out := make([]Object, 0, len(shard))
	for _, obj := range shard {
		out = append(out, obj)
	}
	return out
}

// GetObjectsInRange 返回城区内与 pos 距离不超过 r 的对象
func (m *Manager) GetObjectsInRange(pos model.LocationVector, r float64, districtID uint8) []Object {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rSq := r * r
	shard := m.districtObjects[districtID]
	out := make([]Object, 0, 16)
	for _, obj := range shard {
		if pos.DistanceSq(obj.Position()) <= rSq {
			out = append(out, obj)
		}
	}
	return out
}

// GetNearestObject 返回城区内指定类型的最近对象，超出 maxRange 视为无
func (m *Manager) GetNearestObject(pos model.LocationVector, objectType uint16, districtID uint8, maxRange float64) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bestSq := maxRange * maxRange
	var best Object
	for _, obj := range m.districtObjects[districtID] {
		if obj.Type() != objectType {
			continue
		}
		if dSq := pos.DistanceSq(obj.Position()); dSq <= bestSq {
			bestSq = dSq
			best = obj
		}
	}
	return best, best != nil
}

// FindPath 城区内寻路，委托导航网格
func (m *Manager) FindPath(start, end model.LocationVector, districtID uint8) ([]model.LocationVector, error) {
	return m.nav.FindPath(districtID, start, end)
}

// HasLineOfSight 城区内视线检查，委托导航网格
func (m *Manager) HasLineOfSight(a, b model.LocationVector, districtID uint8) bool {
	return m.nav.HasLineOfSight(districtID, a, b)
}

// IsPositionValid 位置是否可行走
func (m *Manager) IsPositionValid(pos model.LocationVector, districtID uint8) bool {
	return m.nav.IsPositionValid(districtID, pos)
}

// ClosestValidPosition 最近可行走位置
func (m *Manager) ClosestValidPosition(pos model.LocationVector, districtID uint8, maxDistance float64) model.LocationVector {
	return m.nav.ClosestValidPosition(districtID, pos, maxDistance)
}

// GetRandomSpawnPosition 城区出生点：有声明的出生点列表时均匀抽取，
// 否则在城区原点附近的导航网格上随机采样。
func (m *Manager) GetRandomSpawnPosition(districtID uint8) (model.LocationVector, error) {
	m.mu.RLock()
	d := m.districts[districtID]
	m.mu.RUnlock()

	if d == nil {
		return model.LocationVector{}, errors.Wrapf(ErrUnknownDistrict, "district %d", districtID)
	}

	if len(d.Spawns) > 0 {
		m.rngMu.Lock()
		idx := m.rng.Intn(len(d.Spawns))
		m.rngMu.Unlock()
		return d.Spawns[idx].Location(), nil
	}

	const safeRadius = 32.0
	return m.nav.RandomPoint(districtID, model.LocationVector{}, safeRadius), nil
}
