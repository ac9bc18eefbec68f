// Command shortlink 短網址服務
//
//	shortlink serve                    啟動 HTTP 服務
//	shortlink migrate up|down|version  資料庫遷移
//	shortlink create --url <url>       從命令行創建短網址
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
