// Package idgen 提供持久实体的唯一 ID 生成。
package idgen

// Generator ID 生成器接口
type Generator interface {
	// NextID 生成下一个唯一 ID
	NextID() (int64, error)
}
