package model

import (
	"math"

	"github.com/hardlinedev/reality/pkg/wire"
)

// LocationVector 世界坐标与朝向。
// 朝向为弧度，距离为欧氏距离。
type LocationVector struct {
	X, Y, Z float64
	O       float64
}

// NewLocation 创建带朝向的坐标
func NewLocation(x, y, z, o float64) LocationVector {
	return LocationVector{X: x, Y: y, Z: z, O: o}
}

// Distance 三维欧氏距离
func (v LocationVector) Distance(other LocationVector) float64 {
	dx := other.X - v.X
	dy := other.Y - v.Y
	dz := other.Z - v.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Distance2D 平面欧氏距离
func (v LocationVector) Distance2D(other LocationVector) float64 {
	dx := other.X - v.X
	dy := other.Y - v.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// DistanceSq 三维距离平方，范围比较时省开方
func (v LocationVector) DistanceSq(other LocationVector) float64 {
	dx := other.X - v.X
	dy := other.Y - v.Y
	dz := other.Z - v.Z
	return dx*dx + dy*dy + dz*dz
}

// AngleTo 指向 other 的平面方位角
func (v LocationVector) AngleTo(other LocationVector) float64 {
	return math.Atan2(other.Y-v.Y, other.X-v.X)
}

// Move 平移
func (v LocationVector) Move(dx, dy, dz float64) LocationVector {
	return LocationVector{X: v.X + dx, Y: v.Y + dy, Z: v.Z + dz, O: v.O}
}

// MoveForward 沿当前朝向前进 distance
func (v LocationVector) MoveForward(distance float64) LocationVector {
	return LocationVector{
		X: v.X + distance*math.Cos(v.O),
		Y: v.Y + distance*math.Sin(v.O),
		Z: v.Z,
		O: v.O,
	}
}

// WriteTo 序列化到缓冲: x, y, z, o 各为小端 f64
func (v LocationVector) WriteTo(b *wire.ByteBuffer) {
	b.WriteFloat64(v.X)
	b.WriteFloat64(v.Y)
	b.WriteFloat64(v.Z)
	b.WriteFloat64(v.O)
}

// ReadLocation 从缓冲反序列化坐标
func ReadLocation(b *wire.ByteBuffer) (LocationVector, error) {
	var v LocationVector
	var err error
	if v.X, err = b.ReadFloat64(); err != nil {
		return v, err
	}
	if v.Y, err = b.ReadFloat64(); err != nil {
		return v, err
	}
	if v.Z, err = b.ReadFloat64(); err != nil {
		return v, err
	}
	if v.O, err = b.ReadFloat64(); err != nil {
		return v, err
	}
	return v, nil
}
