package shortener

import (
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// NormalizeURL 驗證並規範化原始 URL
//
// 驗證規則：
//   - 去除首尾空白後不為空
//   - 必須可解析（url.Parse）
//   - scheme 必須是 http 或 https（不區分大小寫）
//   - 必須有 host
//   - blockPrivate 為 true 時拒絕 localhost 與私有 IP（防止 SSRF）
//
// 返回去除空白後的字符串，去重與快取都以它為 key。
func NormalizeURL(raw string, blockPrivate bool) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalidURL.WithDetails("url is required")
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", ErrInvalidURL.WithDetails("malformed url")
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", ErrInvalidURL.WithDetails("scheme must be http or https")
	}

	if u.Host == "" || u.Hostname() == "" {
		return "", ErrInvalidURL.WithDetails("host is required")
	}

	if blockPrivate && isPrivateOrLocalhost(u.Hostname()) {
		return "", ErrInvalidURL.WithDetails("private or loopback hosts are not allowed")
	}

	return s, nil
}

// isPrivateOrLocalhost 檢查主機名是否為私有 IP 或 localhost
//
// 防護範圍：
//   - localhost、127.0.0.0/8、::1
//   - 10.0.0.0/8、172.16.0.0/12、192.168.0.0/16、fc00::/7
//   - 169.254.0.0/16（雲服務元數據端點）
//
// 域名不做 DNS 解析，只擋 IP 字面量。
func isPrivateOrLocalhost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return false
	}
	addr = addr.Unmap()

	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified()
}
