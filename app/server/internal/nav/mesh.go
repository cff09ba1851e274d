// Package nav 实现城区导航网格：位置校验、寻路、视线与随机采样。
// 网格在启动时按城区加载，加载后只读，查询无锁。
package nav

import (
	"math"

	"github.com/cockroachdb/errors"

	"github.com/hardlinedev/reality/app/server/internal/model"
)

var (
	// ErrNoMesh 城区没有已加载的导航网格
	ErrNoMesh = errors.New("nav: no mesh for district")
	// ErrNoPath 两点间不可达
	ErrNoPath = errors.New("nav: no path")
	// ErrBadMeshData 网格数据非法
	ErrBadMeshData = errors.New("nav: bad mesh data")
)

// AgentParams 寻路代理参数，随网格数据加载
type AgentParams struct {
	Height   float64 `json:"height"`
	Radius   float64 `json:"radius"`
	MaxClimb float64 `json:"max_climb"`
	MaxSlope float64 `json:"max_slope"`
}

// Mesh 单个城区的均匀网格导航数据。
// 世界平面按 CellSize 划分为 Width×Height 个格子，
// walkable 按行主序记录可行走性。
type Mesh struct {
	District uint8
	CellSize float64
	OriginX  float64
	OriginY  float64
	Width    int
	Height   int
	Agent    AgentParams

	walkable []bool
}

// NewMesh 由行主序可行走位图构造网格
func NewMesh(district uint8, cellSize, originX, originY float64, width, height int, walkable []bool, agent AgentParams) (*Mesh, error) {
	if cellSize <= 0 || width <= 0 || height <= 0 {
		return nil, errors.Wrap(ErrBadMeshData, "non-positive dimensions")
	}
	if len(walkable) != width*height {
		return nil, errors.Wrapf(ErrBadMeshData, "bitmap %d cells, want %d", len(walkable), width*height)
	}
	return &Mesh{
		District: district,
		CellSize: cellSize,
		OriginX:  originX,
		OriginY:  originY,
		Width:    width,
		Height:   height,
		Agent:    agent,
		walkable: walkable,
	}, nil
}

// cellAt 世界坐标 → 格子坐标
func (m *Mesh) cellAt(x, y float64) (int, int) {
	cx := int(math.Floor((x - m.OriginX) / m.CellSize))
	cy := int(math.Floor((y - m.OriginY) / m.CellSize))
	return cx, cy
}

// cellCenter 格子坐标 → 格子中心的世界坐标
func (m *Mesh) cellCenter(cx, cy int) (float64, float64) {
	return m.OriginX + (float64(cx)+0.5)*m.CellSize,
		m.OriginY + (float64(cy)+0.5)*m.CellSize
}

func (m *Mesh) inBounds(cx, cy int) bool {
	return cx >= 0 && cx < m.Width && cy >= 0 && cy < m.Height
}

func (m *Mesh) walkableCell(cx, cy int) bool {
	return m.inBounds(cx, cy) && m.walkable[cy*m.Width+cx]
}

// IsValid 位置是否落在可行走格子上
func (m *Mesh) IsValid(pos model.LocationVector) bool {
	cx, cy := m.cellAt(pos.X, pos.Y)
	return m.walkableCell(cx, cy)
}

// ClosestValid 返回 maxDistance 内最近的可行走位置。
// 按环半径由内向外做螺旋扫描；找不到时原样返回输入。
func (m *Mesh) ClosestValid(pos model.LocationVector, maxDistance float64) model.LocationVector {
	if m.IsValid(pos) {
		return pos
	}

	cx, cy := m.cellAt(pos.X, pos.Y)
	maxRings := int(math.Ceil(maxDistance/m.CellSize)) + 1

	bestDistSq := math.Inf(1)
	var bestX, bestY float64
	found := false

	for ring := 1; ring <= maxRings; ring++ {
		for dy := -ring; dy <= ring; dy++ {
			for dx := -ring; dx <= ring; dx++ {
				// 只扫当前环的边界
				if max(abs(dx), abs(dy)) != ring {
					continue
				}
				if !m.walkableCell(cx+dx, cy+dy) {
					continue
				}
				wx, wy := m.cellCenter(cx+dx, cy+dy)
				distSq := (wx-pos.X)*(wx-pos.X) + (wy-pos.Y)*(wy-pos.Y)
				if distSq < bestDistSq {
					bestDistSq = distSq
					bestX, bestY = wx, wy
					found = true
				}
			}
		}
		// 下一环的格子中心距 pos 至少 (ring+0.5) 格，不可能更近时停止
		if found && (float64(ring)+0.5)*m.CellSize >= math.Sqrt(bestDistSq) {
			break
		}
	}

	if !found || math.Sqrt(bestDistSq) > maxDistance {
		return pos
	}
	return model.LocationVector{X: bestX, Y: bestY, Z: pos.Z, O: pos.O}
}

// HasLineOfSight 两点间的格子连线是否全部可行走（Bresenham 网格遍历；
// 对角步进时不检查两侧的正交格）
func (m *Mesh) HasLineOfSight(a, b model.LocationVector) bool {
	x0, y0 := m.cellAt(a.X, a.Y)
	x1, y1 := m.cellAt(b.X, b.Y)

	dx := abs(x1 - x0)
	dy := abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}

	x, y := x0, y0
	err := dx - dy
	for {
		if !m.walkableCell(x, y) {
			return false
		}
		if x == x1 && y == y1 {
			return true
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x += sx
		}
		if e2 < dx {
			err += dx
			y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
