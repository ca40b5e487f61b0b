package multiaddr

import (
	"github.com/multiformats/go-varint"
)

// Protocol 描述一个 multiaddr 协议
type Protocol struct {
	// Name 协议名称（如 "ip4", "tcp"）
	Name string

	// Code 协议代码
	Code int

	// VCode 预计算的 varint 编码
	VCode []byte

	// Size 协议数据大小（位）
	// 0 表示无数据，LengthPrefixedVarSize 表示变长
	Size int

	// Transcoder 编解码器
	Transcoder Transcoder
}

// String 返回协议名称
func (p Protocol) String() string {
	return p.Name
}

// LengthPrefixedVarSize 表示变长数据（使用 varint 前缀）
const LengthPrefixedVarSize = -1

// 协议代码常量（与 multiformats/multicodec 对齐）
const (
	P_IP4     = 0x0004
	P_TCP     = 0x0006
	P_IP6     = 0x0029
	P_DNS     = 0x0035
	P_DNS4    = 0x0036
	P_DNS6    = 0x0037
	P_DNSADDR = 0x0038
	P_P2P     = 0x01A5
	P_WS      = 0x01DD
	P_WSS     = 0x01DE
)

func newProtocol(name string, code, size int, tc Transcoder) Protocol {
	return Protocol{
		Name:       name,
		Code:       code,
		VCode:      varint.ToUvarint(uint64(code)),
		Size:       size,
		Transcoder: tc,
	}
}

var (
	protoIP4     = newProtocol("ip4", P_IP4, 32, TranscoderIP4)
	protoTCP     = newProtocol("tcp", P_TCP, 16, TranscoderPort)
	protoIP6     = newProtocol("ip6", P_IP6, 128, TranscoderIP6)
	protoDNS     = newProtocol("dns", P_DNS, LengthPrefixedVarSize, TranscoderDNS)
	protoDNS4    = newProtocol("dns4", P_DNS4, LengthPrefixedVarSize, TranscoderDNS)
	protoDNS6    = newProtocol("dns6", P_DNS6, LengthPrefixedVarSize, TranscoderDNS)
	protoDNSADDR = newProtocol("dnsaddr", P_DNSADDR, LengthPrefixedVarSize, TranscoderDNS)
	protoP2P     = newProtocol("p2p", P_P2P, LengthPrefixedVarSize, TranscoderP2P)
	protoWS      = newProtocol("ws", P_WS, 0, nil)
	protoWSS     = newProtocol("wss", P_WSS, 0, nil)
)

// protocols 协议注册表（按代码索引）
var protocols = map[int]Protocol{
	P_IP4:     protoIP4,
	P_TCP:     protoTCP,
	P_IP6:     protoIP6,
	P_DNS:     protoDNS,
	P_DNS4:    protoDNS4,
	P_DNS6:    protoDNS6,
	P_DNSADDR: protoDNSADDR,
	P_P2P:     protoP2P,
	P_WS:      protoWS,
	P_WSS:     protoWSS,
}

// protocolsByName 协议注册表（按名称索引）
var protocolsByName = func() map[string]Protocol {
	m := make(map[string]Protocol, len(protocols)+1)
	for _, p := range protocols {
		m[p.Name] = p
	}
	// 兼容旧名称
	m["ipfs"] = protoP2P
	return m
}()

// ProtocolWithCode 按代码查找协议，未找到返回零值
func ProtocolWithCode(code int) Protocol {
	return protocols[code]
}

// ProtocolWithName 按名称查找协议，未找到返回零值
func ProtocolWithName(name string) Protocol {
	return protocolsByName[name]
}
