package swarm

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-meshnode/pkg/types"
)

var (
	// ErrSwarmClosed Swarm 已关闭
	ErrSwarmClosed = errors.New("swarm closed")

	// ErrNoAddresses 没有可拨号的地址
	ErrNoAddresses = errors.New("no dialable addresses")

	// ErrDialToSelf 尝试拨号自己
	ErrDialToSelf = errors.New("dial to self attempted")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("invalid swarm config")

	// ErrNoListenAddrs 没有监听地址
	ErrNoListenAddrs = errors.New("no addresses to listen")
)

// errNoConnection 未连接到节点
func errNoConnection(p types.PeerID) error {
	return fmt.Errorf("%w: %s", types.ErrNotConnected, p.ShortString())
}
