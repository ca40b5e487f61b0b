package dnsaddr

import (
	"fmt"
	"strings"

	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
)

const (
	// RecordPrefix TXT 记录前缀
	RecordPrefix = "dnsaddr="

	// DomainPrefix TXT 查询域名前缀
	DomainPrefix = "_dnsaddr."
)

// ParseRecord 解析一条 "dnsaddr=<multiaddr>" TXT 记录
func ParseRecord(txt string) (ma.Multiaddr, error) {
	s, ok := strings.CutPrefix(txt, RecordPrefix)
	if !ok || s == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRecord, txt)
	}
	a, err := ma.NewMultiaddr(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return a, nil
}

// queryName 返回 domain 对应的 TXT 查询名
func queryName(domain string) string {
	domain = strings.TrimSuffix(domain, ".")
	if strings.HasPrefix(domain, DomainPrefix) {
		return domain
	}
	return DomainPrefix + domain
}

// matchPeer 检查地址的 /p2p 组件是否与 want 一致（want 为空时总是匹配）
func matchPeer(a ma.Multiaddr, want string) bool {
	if want == "" {
		return true
	}
	_, id := ma.SplitPeer(a)
	return id == want
}
