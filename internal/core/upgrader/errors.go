package upgrader

import (
	"context"
	"errors"

	mss "github.com/multiformats/go-multistream"

	"github.com/dep2p/go-meshnode/pkg/types"
)

var (
	// ErrNoPeerID 出站连接缺少 PeerID
	ErrNoPeerID = errors.New("upgrader: outbound connection requires remote peer ID")

	// ErrNoSecurityTransport 没有安全传输
	ErrNoSecurityTransport = errors.New("upgrader: no security transport configured")

	// ErrNoStreamMuxer 没有流复用器
	ErrNoStreamMuxer = errors.New("upgrader: no stream muxer configured")
)

// negotiationError 将 multistream 协商失败转换为握手错误
func negotiationError(ctx context.Context, peer types.PeerID, err error) error {
	reason := types.HandshakeIO
	var notSupported mss.ErrNotSupported[string]
	switch {
	case errors.As(err, &notSupported), errors.Is(err, mss.ErrNoProtocols):
		reason = types.HandshakeUnsupported
	case ctx.Err() != nil, types.IsTimeout(err):
		reason = types.HandshakeTimeout
	}
	return &types.HandshakeError{Peer: peer, Reason: reason, Err: err}
}
