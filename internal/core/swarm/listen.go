package swarm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// acceptBackoff Accept 出错后的重试间隔
const acceptBackoff = 50 * time.Millisecond

// Listen 监听地址，至少一个成功即返回 nil
func (s *Swarm) Listen(addrs ...ma.Multiaddr) error {
	if s.closed.Load() {
		return ErrSwarmClosed
	}
	if len(addrs) == 0 {
		return ErrNoListenAddrs
	}

	var errs error
	succeeded := 0
	for _, addr := range addrs {
		if err := s.listen(addr); err != nil {
			logger.Warn("监听地址失败", "addr", addr, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("listen %s: %w", addr, err))
			continue
		}
		succeeded++
	}

	if succeeded == 0 {
		return errs
	}
	return nil
}

func (s *Swarm) listen(addr ma.Multiaddr) error {
	l, err := s.transports.Listen(addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		_ = l.Close()
		return ErrSwarmClosed
	}
	s.listeners = append(s.listeners, l)
	s.listenAddrs = append(s.listenAddrs, l.Multiaddr())
	s.wg.Add(1)
	s.mu.Unlock()

	logger.Info("开始监听", "addr", l.Multiaddr())
	s.emit(types.NewListenAddrAdded(l.Multiaddr()))

	go func() {
		defer s.wg.Done()
		s.acceptLoop(l)
	}()
	return nil
}

// ListenAddrs 返回实际监听地址
func (s *Swarm) ListenAddrs() []ma.Multiaddr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ma.Multiaddr(nil), s.listenAddrs...)
}

func (s *Swarm) acceptLoop(l pkgif.Listener) {
	for {
		tc, err := l.Accept()
		if err != nil {
			if s.closed.Load() {
				return
			}
			logger.Debug("接受连接失败", "addr", l.Multiaddr(), "error", err)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(acceptBackoff):
			}
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.upgradeInbound(tc)
		}()
	}
}

func (s *Swarm) upgradeInbound(tc pkgif.TransportConn) {
	ctx, cancel := context.WithTimeout(s.ctx, s.config.DialTimeout)
	defer cancel()

	uc, err := s.upgrader.Upgrade(ctx, tc, types.DirInbound, types.EmptyPeerID)
	if err != nil {
		logger.Debug("入站连接升级失败", "remoteAddr", tc.RemoteMultiaddr(), "error", err)
		return
	}
	if uc.RemotePeer() == s.localPeer {
		logger.Debug("拒绝来自自身的连接")
		_ = uc.Close()
		return
	}
	_, _ = s.addConn(uc, types.DirInbound)
}
