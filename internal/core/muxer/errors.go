package muxer

import (
	"errors"

	"github.com/libp2p/go-yamux/v5"

	"github.com/dep2p/go-meshnode/pkg/types"
)

// ErrStreamReset 流被重置
var ErrStreamReset = errors.New("stream reset")

// parseError 转换 yamux 错误
func parseError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, yamux.ErrStreamReset) {
		return ErrStreamReset
	}
	if errors.Is(err, yamux.ErrSessionShutdown) {
		return types.ErrConnectionClosed
	}
	return err
}
