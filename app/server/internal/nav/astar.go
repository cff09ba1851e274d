package nav

import (
	"container/heap"
	"math"

	"github.com/hardlinedev/reality/app/server/internal/model"
)

// FindPath 网格 A* 寻路，返回化简后的路径点（含起点终点的可行走投影）。
// 起点或终点不在网格上时先吸附到最近可行走格；不可达返回 ErrNoPath。
func (m *Mesh) FindPath(start, end model.LocationVector) ([]model.LocationVector, error) {
	snapRange := 4 * m.CellSize
	start = m.ClosestValid(start, snapRange)
	end = m.ClosestValid(end, snapRange)

	sx, sy := m.cellAt(start.X, start.Y)
	ex, ey := m.cellAt(end.X, end.Y)
	if !m.walkableCell(sx, sy) || !m.walkableCell(ex, ey) {
		return nil, ErrNoPath
	}
	if sx == ex && sy == ey {
		return []model.LocationVector{start, end}, nil
	}

	cells, err := m.aStar(sx, sy, ex, ey)
	if err != nil {
		return nil, err
	}

	path := make([]model.LocationVector, 0, len(cells)+2)
	path = append(path, start)
	for _, c := range cells[1 : len(cells)-1] {
		wx, wy := m.cellCenter(c%m.Width, c/m.Width)
		path = append(path, model.LocationVector{X: wx, Y: wy, Z: start.Z})
	}
	path = append(path, end)

	return m.simplifyPath(path), nil
}

// PathDistance 路径总长度，不可达返回 +Inf
func (m *Mesh) PathDistance(start, end model.LocationVector) float64 {
	path, err := m.FindPath(start, end)
	if err != nil {
		return math.Inf(1)
	}
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += path[i-1].Distance2D(path[i])
	}
	return total
}

type openNode struct {
	cell  int
	fCost float64
	index int
}

type openHeap []*openNode

func (h openHeap) Len() int            { return len(h) }
func (h openHeap) Less(i, j int) bool  { return h[i].fCost < h[j].fCost }
func (h openHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *openHeap) Push(x interface{}) { n := x.(*openNode); n.index = len(*h); *h = append(*h, n) }
func (h *openHeap) Pop() interface{} {
	old := *h
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	return n
}

// 八邻域及对应代价，对角线不允许切角
var neighbors = [8][3]float64{
	{1, 0, 1}, {-1, 0, 1}, {0, 1, 1}, {0, -1, 1},
	{1, 1, math.Sqrt2}, {1, -1, math.Sqrt2}, {-1, 1, math.Sqrt2}, {-1, -1, math.Sqrt2},
}

// aStar 返回从起点到终点的格子索引序列（含两端）
func (m *Mesh) aStar(sx, sy, ex, ey int) ([]int, error) {
	startCell := sy*m.Width + sx
	endCell := ey*m.Width + ex

	gCost := map[int]float64{startCell: 0}
	cameFrom := make(map[int]int)
	closed := make(map[int]bool)

	octile := func(cx, cy int) float64 {
		dx := float64(abs(cx - ex))
		dy := float64(abs(cy - ey))
		return math.Max(dx, dy) + (math.Sqrt2-1)*math.Min(dx, dy)
	}

	open := &openHeap{}
	heap.Init(open)
	heap.Push(open, &openNode{cell: startCell, fCost: octile(sx, sy)})

	for open.Len() > 0 {
		current := heap.Pop(open).(*openNode)
		if closed[current.cell] {
			continue
		}
		if current.cell == endCell {
			return reconstruct(cameFrom, startCell, endCell), nil
		}
		closed[current.cell] = true

		cx := current.cell % m.Width
		cy := current.cell / m.Width

		for _, n := range neighbors {
			nx := cx + int(n[0])
			ny := cy + int(n[1])
			if !m.walkableCell(nx, ny) {
				continue
			}
			// 对角线移动要求两个相邻正交格也可行走，避免穿墙角
			if n[0] != 0 && n[1] != 0 {
				if !m.walkableCell(cx+int(n[0]), cy) || !m.walkableCell(cx, cy+int(n[1])) {
					continue
				}
			}

			next := ny*m.Width + nx
			if closed[next] {
				continue
			}

			tentative := gCost[current.cell] + n[2]
			if prev, seen := gCost[next]; seen && tentative >= prev {
				continue
			}
			gCost[next] = tentative
			cameFrom[next] = current.cell
			heap.Push(open, &openNode{cell: next, fCost: tentative + octile(nx, ny)})
		}
	}

	return nil, ErrNoPath
}

func reconstruct(cameFrom map[int]int, start, end int) []int {
	path := []int{end}
	for cell := end; cell != start; {
		cell = cameFrom[cell]
		path = append(path, cell)
	}
	// 反转为起点在前
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// simplifyPath 视线化简：能直达的中间点全部去掉
func (m *Mesh) simplifyPath(path []model.LocationVector) []model.LocationVector {
	if len(path) <= 2 {
		return path
	}

	out := []model.LocationVector{path[0]}
	anchor := 0
	for i := 2; i < len(path); i++ {
		if !m.HasLineOfSight(path[anchor], path[i]) {
			out = append(out, path[i-1])
			anchor = i - 1
		}
	}
	out = append(out, path[len(path)-1])
	return out
}
