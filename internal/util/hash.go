package util

import (
	"fmt"
	"hash/fnv"
)

// FNV64 使用 FNV-1a 64 位哈希算法，返回 16 进制字符串
// Used to keep identity keys bounded and free of separator characters.
func FNV64(s string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%016x", h.Sum64())
}
