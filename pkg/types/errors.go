package types

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ============================================================================
//                              TransportError
// ============================================================================

// TransportError 传输层错误（拨号、监听、读写失败）
//
// 可恢复，是否重试由调用方决定。
type TransportError struct {
	// Op 操作：dial / listen / accept
	Op string
	// Addr 相关地址
	Addr string
	// Err 底层错误
	Err error
}

func (e *TransportError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout 是否为超时错误
func (e *TransportError) Timeout() bool {
	var ne net.Error
	if errors.As(e.Err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(e.Err, ErrTimeout)
}

// NewTransportError 创建传输层错误
func NewTransportError(op, addr string, err error) *TransportError {
	return &TransportError{Op: op, Addr: addr, Err: err}
}

// ============================================================================
//                              HandshakeError
// ============================================================================

// HandshakeReason 握手失败原因
type HandshakeReason string

const (
	// HandshakePeerIDMismatch 对端身份与期望不符
	HandshakePeerIDMismatch HandshakeReason = "peer-id-mismatch"
	// HandshakeUnsupported 协议协商失败
	HandshakeUnsupported HandshakeReason = "unsupported-protocol"
	// HandshakeTimeout 握手超时
	HandshakeTimeout HandshakeReason = "timeout"
	// HandshakeBadSignature 身份签名无效
	HandshakeBadSignature HandshakeReason = "bad-signature"
	// HandshakeIO 握手过程中读写失败
	HandshakeIO HandshakeReason = "io"
)

// HandshakeError 安全握手失败
//
// 连接尝试被中止，本层不自动重试。
type HandshakeError struct {
	// Peer 期望的对端（入站时可能为空）
	Peer PeerID
	// Reason 失败原因
	Reason HandshakeReason
	// Err 底层错误
	Err error
}

func (e *HandshakeError) Error() string {
	if e.Peer.IsEmpty() {
		return fmt.Sprintf("handshake failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("handshake with %s failed (%s): %v", e.Peer.ShortString(), e.Reason, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// ============================================================================
//                              LookupTimeout
// ============================================================================

// LookupTimeout DHT 查找超时
//
// 不会作为错误返回给调用方，而是附在部分结果上。
type LookupTimeout struct {
	Target PeerID
	Rounds int
	Found  int
}

func (e *LookupTimeout) Error() string {
	return fmt.Sprintf("lookup %s timed out after %d rounds with %d peers", e.Target.ShortString(), e.Rounds, e.Found)
}

// Timeout 实现 net.Error 风格的超时判断
func (e *LookupTimeout) Timeout() bool { return true }

// ============================================================================
//                              DialError
// ============================================================================

// DialError 拨号错误，聚合每个地址的失败原因
type DialError struct {
	Peer   PeerID
	Errors []error
}

func (e *DialError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("dial %s: no addresses", e.Peer.ShortString())
	}
	parts := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("dial %s: %s", e.Peer.ShortString(), strings.Join(parts, "; "))
}

// Unwrap 返回所有底层错误
func (e *DialError) Unwrap() []error { return e.Errors }

// ============================================================================
//                              通用错误
// ============================================================================

var (
	// ErrTimeout 操作超时
	ErrTimeout = errors.New("timeout")

	// ErrNotConnected 未连接
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionClosed 连接已关闭
	ErrConnectionClosed = errors.New("connection closed")
)

// IsTimeout 判断错误链中是否包含超时
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var t interface{ Timeout() bool }
	if errors.As(err, &t) && t.Timeout() {
		return true
	}
	return errors.Is(err, ErrTimeout)
}
