package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	mss "github.com/multiformats/go-multistream"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/log"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

var logger = log.Logger("core/host")

// ErrHostClosed Host 已关闭
var ErrHostClosed = errors.New("host is closed")

// Host 网络主机
type Host struct {
	swarm     pkgif.Swarm
	peerstore pkgif.Peerstore
	eventbus  pkgif.EventBus
	config    Config

	// multistream-select muxer 用于入站协议协商
	mux *mss.MultistreamMuxer[string]

	mu       sync.RWMutex
	handlers map[types.ProtocolID]pkgif.StreamHandler

	closed atomic.Bool
}

var _ pkgif.Host = (*Host)(nil)

// New 创建 Host 并接管 Swarm 的入站流
func New(sw pkgif.Swarm, ps pkgif.Peerstore, bus pkgif.EventBus, cfg Config) (*Host, error) {
	if sw == nil {
		return nil, errors.New("host: swarm is required")
	}
	if ps == nil {
		return nil, errors.New("host: peerstore is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &Host{
		swarm:     sw,
		peerstore: ps,
		eventbus:  bus,
		config:    cfg,
		mux:       mss.NewMultistreamMuxer[string](),
		handlers:  make(map[types.ProtocolID]pkgif.StreamHandler),
	}
	sw.SetInboundStreamHandler(h.handleInboundStream)
	return h, nil
}

// ID 返回节点 ID
func (h *Host) ID() types.PeerID {
	return h.swarm.LocalPeer()
}

// Addrs 返回对外地址
//
// 未指定地址（0.0.0.0、::）展开为本机接口地址，再经过 AddrsFactory。
func (h *Host) Addrs() []ma.Multiaddr {
	return h.config.AddrsFactory(expandUnspecified(h.swarm.ListenAddrs()))
}

// AddrInfo 返回本节点的 AddrInfo
func (h *Host) AddrInfo() types.AddrInfo {
	return types.AddrInfo{ID: h.ID(), Addrs: h.Addrs()}
}

// Config 返回 Host 配置
func (h *Host) Config() Config {
	return h.config
}

// Listen 监听配置中的地址
func (h *Host) Listen() error {
	if len(h.config.ListenAddrs) == 0 {
		return nil
	}
	return h.swarm.Listen(h.config.ListenAddrs...)
}

// Connect 连接到指定节点
//
// 地址以 DiscoveredAddrTTL 写入 Peerstore，然后由 Swarm 拨号。
func (h *Host) Connect(ctx context.Context, info types.AddrInfo) error {
	if h.closed.Load() {
		return ErrHostClosed
	}
	if info.ID == h.ID() {
		return nil
	}

	if len(info.Addrs) > 0 {
		h.peerstore.AddAddrs(info.ID, info.Addrs, pkgif.DiscoveredAddrTTL)
	}
	if h.swarm.Connectedness(info.ID) == pkgif.Connected {
		return nil
	}

	if _, err := h.swarm.DialPeer(ctx, info.ID); err != nil {
		logger.Debug("连接节点失败", "peerID", info.ID.ShortString(), "error", err)
		return err
	}
	logger.Debug("连接节点成功", "peerID", info.ID.ShortString())
	return nil
}

// NewStream 创建到指定节点的新流，按顺序选择对端支持的第一个协议
func (h *Host) NewStream(ctx context.Context, p types.PeerID, protocols ...types.ProtocolID) (pkgif.Stream, error) {
	if h.closed.Load() {
		return nil, ErrHostClosed
	}
	if len(protocols) == 0 {
		return nil, errors.New("host: no protocol given")
	}

	stream, err := h.swarm.NewStream(ctx, p)
	if err != nil {
		return nil, err
	}

	protos := make([]string, len(protocols))
	for i, pid := range protocols {
		protos[i] = string(pid)
	}

	deadline := time.Now().Add(h.config.NegotiationTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if h.config.NegotiationTimeout > 0 {
		_ = stream.SetDeadline(deadline)
	}

	selected, err := mss.SelectOneOf(protos, stream)
	if err != nil {
		_ = stream.Reset()
		return nil, fmt.Errorf("protocol negotiation with %s failed: %w", p.ShortString(), err)
	}
	_ = stream.SetDeadline(time.Time{})

	stream.SetProtocol(types.ProtocolID(selected))
	h.peerstore.SetProtocols(p, mergeProtocols(h.peerstore.GetProtocols(p), types.ProtocolID(selected))...)
	return stream, nil
}

// SetStreamHandler 为指定协议设置流处理器
func (h *Host) SetStreamHandler(pid types.ProtocolID, handler pkgif.StreamHandler) {
	h.mu.Lock()
	h.handlers[pid] = handler
	h.mu.Unlock()

	h.mux.AddHandler(string(pid), func(proto string, rwc io.ReadWriteCloser) error {
		stream, ok := rwc.(pkgif.Stream)
		if !ok {
			return fmt.Errorf("unexpected stream type for protocol %s", proto)
		}
		handler(stream)
		return nil
	})
	logger.Debug("注册协议处理器", "protocol", pid)
}

// RemoveStreamHandler 移除指定协议的流处理器
func (h *Host) RemoveStreamHandler(pid types.ProtocolID) {
	h.mu.Lock()
	delete(h.handlers, pid)
	h.mu.Unlock()

	h.mux.RemoveHandler(string(pid))
	logger.Debug("移除协议处理器", "protocol", pid)
}

// Protocols 返回已注册的协议（按字典序）
func (h *Host) Protocols() []types.ProtocolID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]types.ProtocolID, 0, len(h.handlers))
	for pid := range h.handlers {
		out = append(out, pid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Peerstore 返回节点存储
func (h *Host) Peerstore() pkgif.Peerstore { return h.peerstore }

// EventBus 返回事件总线
func (h *Host) EventBus() pkgif.EventBus { return h.eventbus }

// Network 返回底层 Swarm
func (h *Host) Network() pkgif.Swarm { return h.swarm }

// Close 关闭主机及底层 Swarm
func (h *Host) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	return h.swarm.Close()
}

// handleInboundStream 服务端协商后把流交给协议处理器
func (h *Host) handleInboundStream(stream pkgif.Stream) {
	if h.closed.Load() {
		_ = stream.Reset()
		return
	}

	if h.config.NegotiationTimeout > 0 {
		_ = stream.SetDeadline(time.Now().Add(h.config.NegotiationTimeout))
	}
	selected, handler, err := h.mux.Negotiate(stream)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			logger.Debug("协议协商失败",
				"peerID", stream.Conn().RemotePeer().ShortString(),
				"error", err)
		}
		_ = stream.Reset()
		return
	}
	_ = stream.SetDeadline(time.Time{})

	stream.SetProtocol(types.ProtocolID(selected))
	if handler == nil {
		_ = stream.Reset()
		return
	}
	if err := handler(selected, stream); err != nil {
		logger.Debug("协议处理失败", "protocol", selected, "error", err)
		_ = stream.Reset()
	}
}

func mergeProtocols(known []types.ProtocolID, pid types.ProtocolID) []types.ProtocolID {
	for _, p := range known {
		if p == pid {
			return known
		}
	}
	return append(known, pid)
}
