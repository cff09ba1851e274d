// Package checksum 提供非加密校验和，用于导航网格等数据文件的完整性检查。
package checksum

import (
	"os"

	"github.com/cespare/xxhash/v2"
)

// Sum64 计算数据的 XXHash64 校验和
func Sum64(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Verify 验证数据的 XXHash64 校验和
func Verify(data []byte, expected uint64) bool {
	return xxhash.Sum64(data) == expected
}

// SumFile 计算文件内容的 XXHash64 校验和
func SumFile(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}
