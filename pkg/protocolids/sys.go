package protocolids

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/dep2p/go-meshnode/pkg/types"
)

// ============================================================================
//                              连接升级协议
// ============================================================================

// Noise Noise XX 安全握手
const Noise types.ProtocolID = "/noise"

// Yamux yamux 多路复用
const Yamux types.ProtocolID = "/yamux/1.0.0"

// ============================================================================
//                              系统协议
// ============================================================================

// Ping 往返时间测量
const Ping types.ProtocolID = "/ipfs/ping/1.0.0"

// Identify 交换监听地址与支持的协议
const Identify types.ProtocolID = "/meshnode/id/1.0.0"

// DHT Kademlia 查询
const DHT types.ProtocolID = "/meshnode/kad/1.0.0"

// PubSub gossip 发布订阅
const PubSub types.ProtocolID = "/meshsub/1.1.0"

// MeshnodePrefix meshnode 自有协议的前缀，保留给系统使用
const MeshnodePrefix = "/meshnode/"

var system = []types.ProtocolID{Noise, Yamux, Ping, Identify, DHT, PubSub}

// 协议校验错误
var (
	ErrEmptyProtocol    = errors.New("protocol id is empty")
	ErrInvalidProtocol  = errors.New("invalid protocol id")
	ErrReservedProtocol = errors.New("protocol id is reserved")
)

// System 返回全部系统协议
func System() []types.ProtocolID {
	return append([]types.ProtocolID(nil), system...)
}

// IsSystem 判断是否为系统协议或保留前缀下的协议
func IsSystem(p types.ProtocolID) bool {
	if strings.HasPrefix(string(p), MeshnodePrefix) {
		return true
	}
	for _, s := range system {
		if p == s {
			return true
		}
	}
	return false
}

// ValidateApp 校验应用协议 ID
//
// 须以 "/" 开头，不含空白与控制字符，且不是系统协议。
func ValidateApp(p types.ProtocolID) error {
	if p == "" {
		return ErrEmptyProtocol
	}
	if !strings.HasPrefix(string(p), "/") {
		return fmt.Errorf("%w: %q must start with /", ErrInvalidProtocol, p)
	}
	if strings.IndexFunc(string(p), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidProtocol, p)
	}
	if IsSystem(p) {
		return fmt.Errorf("%w: %s", ErrReservedProtocol, p)
	}
	return nil
}
