package types

import (
	"fmt"
	"strings"

	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
)

// AddrInfo 节点的 PeerID 与其地址列表
type AddrInfo struct {
	ID    PeerID
	Addrs []ma.Multiaddr
}

// String 返回可读形式
func (ai AddrInfo) String() string {
	addrs := make([]string, 0, len(ai.Addrs))
	for _, a := range ai.Addrs {
		addrs = append(addrs, a.String())
	}
	return fmt.Sprintf("{%s: [%s]}", ai.ID.ShortString(), strings.Join(addrs, " "))
}

// P2PAddrs 返回带 /p2p/<id> 后缀的完整地址
func (ai AddrInfo) P2PAddrs() []ma.Multiaddr {
	suffix := ma.StringCast("/p2p/" + ai.ID.String())
	out := make([]ma.Multiaddr, 0, len(ai.Addrs))
	for _, a := range ai.Addrs {
		out = append(out, a.Encapsulate(suffix))
	}
	return out
}

// AddrInfoFromP2PAddr 从带 /p2p 组件的地址解析 AddrInfo
//
// 例如 /ip4/1.2.3.4/tcp/4001/p2p/<PeerID>。
func AddrInfoFromP2PAddr(m ma.Multiaddr) (AddrInfo, error) {
	transport, idStr := ma.SplitPeer(m)
	if idStr == "" {
		return AddrInfo{}, fmt.Errorf("%w: %s has no /p2p component", ErrInvalidPeerID, m)
	}
	id, err := ParsePeerID(idStr)
	if err != nil {
		return AddrInfo{}, err
	}
	info := AddrInfo{ID: id}
	if transport != nil {
		info.Addrs = []ma.Multiaddr{transport}
	}
	return info, nil
}

// ParseAddrInfo 从字符串解析 AddrInfo
func ParseAddrInfo(s string) (AddrInfo, error) {
	m, err := ma.NewMultiaddr(s)
	if err != nil {
		return AddrInfo{}, err
	}
	return AddrInfoFromP2PAddr(m)
}

// ParseAddrInfos 解析多个地址并按 PeerID 合并
//
// /dnsaddr 等不含 /p2p 的地址返回到 unresolved 中，由调用方解析。
func ParseAddrInfos(addrs []string) (infos []AddrInfo, unresolved []ma.Multiaddr, err error) {
	index := make(map[PeerID]int)
	for _, s := range addrs {
		m, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, nil, fmt.Errorf("parse %q: %w", s, err)
		}
		if ma.HasProtocol(m, ma.P_DNSADDR) {
			unresolved = append(unresolved, m)
			continue
		}
		info, err := AddrInfoFromP2PAddr(m)
		if err != nil {
			return nil, nil, fmt.Errorf("parse %q: %w", s, err)
		}
		if i, ok := index[info.ID]; ok {
			infos[i].Addrs = append(infos[i].Addrs, info.Addrs...)
			continue
		}
		index[info.ID] = len(infos)
		infos = append(infos, info)
	}
	return infos, unresolved, nil
}
