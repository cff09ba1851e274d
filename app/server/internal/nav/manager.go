package nav

import (
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/hardlinedev/reality/app/server/internal/model"
	"github.com/hardlinedev/reality/pkg/checksum"
	"github.com/hardlinedev/reality/pkg/logger"
)

// meshFile 导航网格文件格式
type meshFile struct {
	District uint8       `json:"district"`
	CellSize float64     `json:"cell_size"`
	OriginX  float64     `json:"origin_x"`
	OriginY  float64     `json:"origin_y"`
	Width    int         `json:"width"`
	Height   int         `json:"height"`
	Agent    AgentParams `json:"agent"`
	// Rows 行主序位图，每行 Width 个字符，'1' 为可行走
	Rows []string `json:"rows"`
	// Checksum 除本字段外的数据校验和，0 表示跳过校验
	Checksum uint64 `json:"checksum,omitempty"`
}

// Manager 按城区持有导航网格。加载完成后只读。
type Manager struct {
	logger logger.Logger

	mu     sync.Mutex // 仅保护加载阶段与随机数
	meshes map[uint8]*Mesh
	rng    *rand.Rand
}

// NewManager 创建导航管理器
func NewManager(l logger.Logger) *Manager {
	return &Manager{
		logger: l.Named("nav.manager"),
		meshes: make(map[uint8]*Mesh),
		rng:    rand.New(rand.NewSource(rand.Int63())),
	}
}

// LoadMesh 从文件加载一个城区的网格。
// 文件携带校验和时先验证完整性。
func (m *Manager) LoadMesh(districtID uint8, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read mesh %s", path)
	}

	var mf meshFile
	if err := json.Unmarshal(raw, &mf); err != nil {
		return errors.Wrapf(ErrBadMeshData, "parse %s: %v", path, err)
	}

	if mf.Checksum != 0 {
		mf2 := mf
		mf2.Checksum = 0
		canonical, err := json.Marshal(&mf2)
		if err != nil {
			return errors.Wrap(err, "canonicalize mesh")
		}
		if !checksum.Verify(canonical, mf.Checksum) {
			return errors.Wrapf(ErrBadMeshData, "checksum mismatch for %s", path)
		}
	}

	if len(mf.Rows) != mf.Height {
		return errors.Wrapf(ErrBadMeshData, "%s: %d rows, want %d", path, len(mf.Rows), mf.Height)
	}
	walkable := make([]bool, 0, mf.Width*mf.Height)
	for i, row := range mf.Rows {
		if len(row) != mf.Width {
			return errors.Wrapf(ErrBadMeshData, "%s: row %d has %d cells, want %d", path, i, len(row), mf.Width)
		}
		for _, c := range row {
			walkable = append(walkable, c == '1')
		}
	}

	mesh, err := NewMesh(districtID, mf.CellSize, mf.OriginX, mf.OriginY, mf.Width, mf.Height, walkable, mf.Agent)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.meshes[districtID] = mesh
	m.mu.Unlock()

	m.logger.Info("navmesh loaded",
		"district", districtID,
		"cells", mf.Width*mf.Height,
		"cell_size", mf.CellSize,
	)
	return nil
}

// AddMesh 直接注册网格（测试与程序化生成）
func (m *Manager) AddMesh(mesh *Mesh) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meshes[mesh.District] = mesh
}

// Mesh 返回城区网格，未加载时为 nil
func (m *Manager) Mesh(districtID uint8) *Mesh {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meshes[districtID]
}

// IsLoaded 城区网格是否已加载
func (m *Manager) IsLoaded(districtID uint8) bool {
	return m.Mesh(districtID) != nil
}

// IsPositionValid 位置是否可行走；网格未加载的城区一律有效
func (m *Manager) IsPositionValid(districtID uint8, pos model.LocationVector) bool {
	mesh := m.Mesh(districtID)
	if mesh == nil {
		return true
	}
	return mesh.IsValid(pos)
}

// ClosestValidPosition 最近可行走位置
func (m *Manager) ClosestValidPosition(districtID uint8, pos model.LocationVector, maxDistance float64) model.LocationVector {
	mesh := m.Mesh(districtID)
	if mesh == nil {
		return pos
	}
	return mesh.ClosestValid(pos, maxDistance)
}

// FindPath 城区内寻路
func (m *Manager) FindPath(districtID uint8, start, end model.LocationVector) ([]model.LocationVector, error) {
	mesh := m.Mesh(districtID)
	if mesh == nil {
		return nil, ErrNoMesh
	}
	return mesh.FindPath(start, end)
}

// HasLineOfSight 城区内视线检查；网格未加载时视为可见
func (m *Manager) HasLineOfSight(districtID uint8, a, b model.LocationVector) bool {
	mesh := m.Mesh(districtID)
	if mesh == nil {
		return true
	}
	return mesh.HasLineOfSight(a, b)
}

// RandomPoint 在 center 周围 radius 内采样一个可行走点。
// 拒绝采样若干次后回退到 ClosestValid。
func (m *Manager) RandomPoint(districtID uint8, center model.LocationVector, radius float64) model.LocationVector {
	mesh := m.Mesh(districtID)
	if mesh == nil {
		return center
	}

	const attempts = 32
	for i := 0; i < attempts; i++ {
		m.mu.Lock()
		angle := m.rng.Float64() * 2 * math.Pi
		dist := math.Sqrt(m.rng.Float64()) * radius
		m.mu.Unlock()

		candidate := model.LocationVector{
			X: center.X + dist*math.Cos(angle),
			Y: center.Y + dist*math.Sin(angle),
			Z: center.Z,
		}
		if mesh.IsValid(candidate) {
			return candidate
		}
	}
	return mesh.ClosestValid(center, radius)
}
