package bootstrap

import "errors"

var (
	// ErrNoBootstrapPeers 没有可拨号的候选节点
	ErrNoBootstrapPeers = errors.New("bootstrap: no bootstrap peers")

	// ErrAllDialsFailed 所有候选节点拨号失败
	ErrAllDialsFailed = errors.New("bootstrap: all dials failed")

	// ErrClosed 服务已关闭
	ErrClosed = errors.New("bootstrap: closed")
)
