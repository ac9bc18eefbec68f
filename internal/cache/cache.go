// Package cache 實現短網址服務使用的臨時鍵值存儲
//
// 兩種實現：
//   - Redis：生產環境，多實例共享
//   - Memory：開發與單元測試，單進程
//
// 兩者暴露相同的方法集，消費方（shortener、ratelimit）各自定義
// 只包含所需方法的小接口，這裡不導出接口。
//
// TTL 語義與 Redis 一致：
//   - key 不存在：TTL 返回 NoKey
//   - key 存在但沒有過期時間：TTL 返回 NoExpiry
package cache

import (
	"time"
)

const (
	// NoKey key 不存在時 TTL 的返回值（對應 Redis 的 -2）
	NoKey time.Duration = -2

	// NoExpiry key 沒有過期時間時 TTL 的返回值（對應 Redis 的 -1）
	NoExpiry time.Duration = -1
)
