package types

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================================
//                              DHTMode - DHT 模式
// ============================================================================

// DHTMode DHT 运行模式
type DHTMode int

const (
	// DHTModeServer 服务端模式：应答查询并把入站节点加入路由表
	DHTModeServer DHTMode = iota
	// DHTModeClient 客户端模式：只发起查询
	DHTModeClient
)

// String 返回模式名称
func (m DHTMode) String() string {
	switch m {
	case DHTModeServer:
		return "server"
	case DHTModeClient:
		return "client"
	default:
		return "unknown"
	}
}

// ParseDHTMode 解析 DHT 模式
func ParseDHTMode(s string) (DHTMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "server":
		return DHTModeServer, nil
	case "client":
		return DHTModeClient, nil
	default:
		return 0, fmt.Errorf("unknown dht mode %q", s)
	}
}

// ============================================================================
//                              LookupState - 查找状态
// ============================================================================

// LookupState DHT 迭代查找状态
//
//	INIT → QUERYING → CONVERGED | TIMEOUT
type LookupState int

const (
	// LookupInit 初始状态
	LookupInit LookupState = iota
	// LookupQuerying 正在查询
	LookupQuerying
	// LookupConverged 已收敛
	LookupConverged
	// LookupTimedOut 超时（返回部分结果）
	LookupTimedOut
)

// String 返回状态名称
func (s LookupState) String() string {
	switch s {
	case LookupInit:
		return "INIT"
	case LookupQuerying:
		return "QUERYING"
	case LookupConverged:
		return "CONVERGED"
	case LookupTimedOut:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// Terminal 是否为终止状态
func (s LookupState) Terminal() bool {
	return s == LookupConverged || s == LookupTimedOut
}

// LookupResult 查找结果
type LookupResult struct {
	// ID 查找请求 ID（日志关联）
	ID string

	// Target 查找目标
	Target PeerID

	// Peers 已知最近的节点，按距离升序
	Peers []AddrInfo

	// State 终止状态
	State LookupState

	// Rounds 查询轮数
	Rounds int

	// Queried 成功查询的节点数
	Queried int

	// Duration 耗时
	Duration time.Duration
}

// Err 超时时返回 *LookupTimeout，否则返回 nil
func (r *LookupResult) Err() error {
	if r == nil || r.State != LookupTimedOut {
		return nil
	}
	return &LookupTimeout{Target: r.Target, Rounds: r.Rounds, Found: len(r.Peers)}
}

// Contains 检查结果中是否包含指定节点
func (r *LookupResult) Contains(id PeerID) bool {
	for _, p := range r.Peers {
		if p.ID == id {
			return true
		}
	}
	return false
}
