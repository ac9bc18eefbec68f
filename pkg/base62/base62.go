// Package base62 提供 Base62 字符集與隨機短碼生成
//
// Base62 使用字符集：0-9, A-Z, a-z（共 62 個字符）
// 相比 Base64，Base62 不包含 URL 中的特殊字符（+ 和 /），更適合用於 URL 短碼
//
// 容量：
//   - 7 位 Base62：62^7 ≈ 3.5 兆
//   - 隨機生成，碰撞由存儲層 UNIQUE 約束兜底
package base62

import (
	"crypto/rand"
	"errors"
	"io"
)

// 字符集：0-9（10個）+ A-Z（26個）+ a-z（26個）= 62個字符
const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// DefaultLength 預設短碼長度
const DefaultLength = 7

// maxByte 拒絕採樣的上界：248 = 62 × 4
//
// 直接 b % 62 會讓前 8 個字符（256 mod 62）出現機率偏高，
// 大於等於 248 的位元組丟棄重抽。
const maxByte = 256 - (256 % len(Alphabet))

// ErrInvalidLength 長度必須為正數
var ErrInvalidLength = errors.New("base62: length must be positive")

// IsValid 檢查字符串是否只包含 Base62 字符
func IsValid(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isBase62(s[i]) {
			return false
		}
	}
	return true
}

func isBase62(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// Generator 隨機短碼生成器
//
// 安全考量：
//   - 使用 crypto/rand，短碼不可預測
//   - 可預測的短碼會讓訪客枚舉出其他人的鏈接
//
// 無共享可變狀態，可被多個 goroutine 並發使用。
type Generator struct {
	length int
	random io.Reader
}

// NewGenerator 創建生成器，length <= 0 時使用 DefaultLength
func NewGenerator(length int) *Generator {
	if length <= 0 {
		length = DefaultLength
	}
	return &Generator{length: length, random: rand.Reader}
}

// Generate 生成一個短碼
func (g *Generator) Generate() (string, error) {
	return Random(g.random, g.length)
}

// Length 返回短碼長度
func (g *Generator) Length() int {
	return g.length
}

// Random 從 r 讀取隨機位元組，均勻地映射到 Base62 字符
func Random(r io.Reader, length int) (string, error) {
	if length <= 0 {
		return "", ErrInvalidLength
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length+length/2)

	for len(out) < length {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= maxByte {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == length {
				break
			}
		}
	}

	return string(out), nil
}
