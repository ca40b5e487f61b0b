package meshnode

import (
	"errors"

	"github.com/dep2p/go-meshnode/internal/discovery/bootstrap"
	"github.com/dep2p/go-meshnode/internal/discovery/dht"
	"github.com/dep2p/go-meshnode/internal/protocol/pubsub"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 节点生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 节点未启动
	ErrNotStarted = errors.New("node not started")

	// ErrAlreadyStarted 节点已启动
	ErrAlreadyStarted = errors.New("node already started")

	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("node closed")

	// ────────────────────────────────────────────────────────────────────────
	// 能力错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrDHTDisabled 未启用 DHT
	ErrDHTDisabled = errors.New("dht disabled")

	// ErrMetricsDisabled 未启用指标
	ErrMetricsDisabled = errors.New("metrics disabled")
)

// 组件错误的再导出，便于调用方使用 errors.Is
var (
	// ErrNoBootstrapPeers 没有可用的引导节点
	ErrNoBootstrapPeers = bootstrap.ErrNoBootstrapPeers

	// ErrPeerNotFound DHT 查找未找到节点
	ErrPeerNotFound = dht.ErrPeerNotFound

	// ErrNoPeers 发布时没有可达节点（仅在禁止零节点发布时返回）
	ErrNoPeers = pubsub.ErrNoPeers
)
