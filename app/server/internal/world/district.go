package world

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/hardlinedev/reality/app/server/internal/model"
)

// ErrBadDistrictData 城区数据文件非法
var ErrBadDistrictData = errors.New("world: bad district data")

// HardlineDef 城区数据里的硬线定义
type HardlineDef struct {
	ID   uint16  `json:"id"`
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
	O    float64 `json:"o,omitempty"`
}

// SpawnDef 出生点定义
type SpawnDef struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	O float64 `json:"o,omitempty"`
}

// StaticObjectDef 静态世界对象定义（NPC、门、终端等）
type StaticObjectDef struct {
	Type  uint16  `json:"type"`
	NpcID uint32  `json:"npc_id,omitempty"`
	Name  string  `json:"name"`
	Level uint8   `json:"level,omitempty"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	O     float64 `json:"o,omitempty"`
}

// DistrictData 单个城区的静态数据
type DistrictData struct {
	ID          uint8             `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	NavMeshFile string            `json:"navmesh_file,omitempty"`
	Adjacent    []uint8           `json:"adjacent,omitempty"`
	Hardlines   []HardlineDef     `json:"hardlines,omitempty"`
	Spawns      []SpawnDef        `json:"spawns,omitempty"`
	Objects     []StaticObjectDef `json:"objects,omitempty"`
}

// Hardline 按编号查硬线定义
func (d *DistrictData) Hardline(id uint16) *HardlineDef {
	for i := range d.Hardlines {
		if d.Hardlines[i].ID == id {
			return &d.Hardlines[i]
		}
	}
	return nil
}

// loadDistrictFile 读取并解析一个城区数据文件
func loadDistrictFile(path string) (*DistrictData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read district %s", path)
	}

	var d DistrictData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, errors.Wrapf(ErrBadDistrictData, "parse %s: %v", path, err)
	}
	if d.ID == 0 {
		return nil, errors.Wrapf(ErrBadDistrictData, "%s: district id missing", path)
	}
	return &d, nil
}

// discoverDistrictFiles 枚举数据目录下的 district_*.json
func discoverDistrictFiles(dataDir string) ([]string, error) {
	pattern := filepath.Join(dataDir, "district_*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Location 出生点定义 → 坐标
func (s SpawnDef) Location() model.LocationVector {
	return model.LocationVector{X: s.X, Y: s.Y, Z: s.Z, O: s.O}
}

// Location 硬线定义 → 坐标
func (h HardlineDef) Location() model.LocationVector {
	return model.LocationVector{X: h.X, Y: h.Y, Z: h.Z, O: h.O}
}

// Location 静态对象定义 → 坐标
func (o StaticObjectDef) Location() model.LocationVector {
	return model.LocationVector{X: o.X, Y: o.Y, Z: o.Z, O: o.O}
}
