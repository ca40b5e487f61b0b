package host

import (
	"net"
	"strings"

	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
)

// interfaceAddrs 返回本机接口 IP，测试中可替换
var interfaceAddrs = func() ([]net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok {
			ips = append(ips, ipnet.IP)
		}
	}
	return ips, nil
}

// expandUnspecified 把 0.0.0.0 / :: 监听地址展开为每个接口地址
//
// 无法获取接口时保留原地址。
func expandUnspecified(listen []ma.Multiaddr) []ma.Multiaddr {
	var ips []net.IP
	var ipsErr error
	loaded := false

	out := make([]ma.Multiaddr, 0, len(listen))
	for _, addr := range listen {
		if !ma.IsUnspecified(addr) {
			out = append(out, addr)
			continue
		}
		if !loaded {
			ips, ipsErr = interfaceAddrs()
			loaded = true
		}
		if ipsErr != nil || len(ips) == 0 {
			out = append(out, addr)
			continue
		}

		wantV4 := ma.HasProtocol(addr, ma.P_IP4)
		for _, ip := range ips {
			isV4 := ip.To4() != nil
			if isV4 != wantV4 {
				continue
			}
			if expanded := replaceIP(addr, ip); expanded != nil {
				out = append(out, expanded)
			}
		}
	}
	return ma.Unique(out)
}

// replaceIP 替换地址中的 IP 组件
func replaceIP(addr ma.Multiaddr, ip net.IP) ma.Multiaddr {
	code, proto := ma.P_IP4, "ip4"
	if ip.To4() == nil {
		code, proto = ma.P_IP6, "ip6"
	}
	old, err := addr.ValueForProtocol(code)
	if err != nil {
		return nil
	}
	prefix := "/" + proto + "/" + old
	s := addr.String()
	if !strings.HasPrefix(s, prefix) {
		return nil
	}
	out, err := ma.NewMultiaddr("/" + proto + "/" + ip.String() + s[len(prefix):])
	if err != nil {
		return nil
	}
	return out
}
