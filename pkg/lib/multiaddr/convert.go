package multiaddr

import (
	"fmt"
	"net"
	"strconv"
)

// FromNetAddr 将 net.Addr 转换为多地址
//
// 仅支持 TCP 地址。
func FromNetAddr(addr net.Addr) (Multiaddr, error) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return FromTCPAddr(a)
	default:
		return nil, fmt.Errorf("%w: unsupported net.Addr %T", ErrInvalidMultiaddr, addr)
	}
}

// FromTCPAddr 将 *net.TCPAddr 转换为多地址
func FromTCPAddr(addr *net.TCPAddr) (Multiaddr, error) {
	if addr == nil {
		return nil, fmt.Errorf("%w: nil tcp addr", ErrInvalidMultiaddr)
	}
	ip := addr.IP
	if ip == nil {
		ip = net.IPv4zero
	}
	var s string
	if ip4 := ip.To4(); ip4 != nil {
		s = fmt.Sprintf("/ip4/%s/tcp/%d", ip4, addr.Port)
	} else {
		s = fmt.Sprintf("/ip6/%s/tcp/%d", ip, addr.Port)
	}
	return NewMultiaddr(s)
}

// DialArgs 返回 net.Dial 所需的网络类型与 host:port
//
// 支持 /ip4|ip6|dns|dns4|dns6/<host>/tcp/<port>[/ws|/wss][/p2p/<id>]。
func DialArgs(m Multiaddr) (network, hostport string, err error) {
	if m == nil {
		return "", "", fmt.Errorf("%w: nil multiaddr", ErrInvalidMultiaddr)
	}

	var host, port string
	network = "tcp"
	err = forEach(m.Bytes(), func(p Protocol, v []byte) error {
		switch p.Code {
		case P_IP4, P_IP6, P_DNS, P_DNS4, P_DNS6:
			if host != "" {
				return nil
			}
			s, err := p.Transcoder.BytesToString(v)
			if err != nil {
				return err
			}
			host = s
			switch p.Code {
			case P_IP4, P_DNS4:
				network = "tcp4"
			case P_IP6, P_DNS6:
				network = "tcp6"
			}
		case P_TCP:
			if port != "" {
				return nil
			}
			s, err := p.Transcoder.BytesToString(v)
			if err != nil {
				return err
			}
			port = s
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}
	if host == "" || port == "" {
		return "", "", fmt.Errorf("%w: %s is not a tcp address", ErrInvalidMultiaddr, m)
	}
	return network, net.JoinHostPort(host, port), nil
}

// ToTCPAddr 转换为 *net.TCPAddr（仅限 IP 地址）
func ToTCPAddr(m Multiaddr) (*net.TCPAddr, error) {
	_, hostport, err := DialArgs(m)
	if err != nil {
		return nil, err
	}
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("%w: %s is not an IP address", ErrInvalidMultiaddr, host)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}
	return &net.TCPAddr{IP: ip, Port: port}, nil
}

// ToNetAddr 转换为 net.Addr
func ToNetAddr(m Multiaddr) (net.Addr, error) {
	addr, err := ToTCPAddr(m)
	if err != nil {
		return nil, err
	}
	return addr, nil
}

// IsWebSocket 检查地址是否为 WebSocket 地址
func IsWebSocket(m Multiaddr) bool {
	return HasProtocol(m, P_WS) || HasProtocol(m, P_WSS)
}

// IsLoopback 检查地址是否为回环地址
func IsLoopback(m Multiaddr) bool {
	addr, err := ToTCPAddr(m)
	if err != nil {
		return false
	}
	return addr.IP.IsLoopback()
}

// IsUnspecified 检查地址是否为 0.0.0.0 或 ::
func IsUnspecified(m Multiaddr) bool {
	addr, err := ToTCPAddr(m)
	if err != nil {
		return false
	}
	return addr.IP.IsUnspecified()
}
