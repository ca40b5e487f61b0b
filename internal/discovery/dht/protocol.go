package dht

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
	"github.com/dep2p/go-meshnode/pkg/lib/proto"
	pb "github.com/dep2p/go-meshnode/pkg/lib/proto/dht"
	ma "github.com/dep2p/go-meshnode/pkg/lib/multiaddr"
	"github.com/dep2p/go-meshnode/pkg/types"
)

// handlerIdleTimeout 入站流两次请求之间的最长空闲时间
const handlerIdleTimeout = time.Minute

// ============================================================================
//                              客户端 RPC
// ============================================================================

// sendRequest 打开流发送一个请求并读取响应
func sendRequest(ctx context.Context, h pkgif.Host, p types.PeerID, req *pb.Message) (*pb.Message, error) {
	stream, err := h.NewStream(ctx, p, ProtocolID)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if d, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(d)
	}
	stop := context.AfterFunc(ctx, func() { _ = stream.Reset() })
	defer stop()

	if err := proto.WriteDelimited(stream, req.Marshal()); err != nil {
		return nil, rpcError(ctx, "write", err)
	}
	data, err := proto.ReadDelimited(stream, maxMessageSize)
	if err != nil {
		return nil, rpcError(ctx, "read", err)
	}

	var resp pb.Message
	if err := resp.Unmarshal(data); err != nil {
		return nil, err
	}
	if resp.Type != req.Type {
		return nil, fmt.Errorf("%w: sent %s, got %s", ErrUnexpectedResponse, req.Type, resp.Type)
	}
	return &resp, nil
}

func rpcError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("dht %s: %w", op, err)
}

// findNode 向 p 发送 FIND_NODE
func findNode(ctx context.Context, h pkgif.Host, p types.PeerID, target types.PeerID) ([]types.AddrInfo, error) {
	resp, err := sendRequest(ctx, h, p, &pb.Message{
		Type: pb.MessageType_FIND_NODE,
		Key:  target.Bytes(),
	})
	if err != nil {
		return nil, err
	}
	return peersFromPB(resp.CloserPeers), nil
}

// ping 向 p 发送 PING
func ping(ctx context.Context, h pkgif.Host, p types.PeerID) error {
	_, err := sendRequest(ctx, h, p, &pb.Message{Type: pb.MessageType_PING})
	return err
}

// ============================================================================
//                              服务端处理
// ============================================================================

// handleStream 处理入站 DHT 流，一条流上可以顺序发送多个请求
func (d *DHT) handleStream(s pkgif.Stream) {
	defer s.Close()
	remote := s.Conn().RemotePeer()

	for {
		_ = s.SetReadDeadline(time.Now().Add(handlerIdleTimeout))
		data, err := proto.ReadDelimited(s, maxMessageSize)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("读取 DHT 请求失败", "peer", remote.ShortString(), "err", err)
				_ = s.Reset()
			}
			return
		}

		var req pb.Message
		if err := req.Unmarshal(data); err != nil {
			logger.Debug("无效的 DHT 请求", "peer", remote.ShortString(), "err", err)
			_ = s.Reset()
			return
		}

		resp, err := d.handleRequest(remote, &req)
		if err != nil {
			logger.Debug("拒绝 DHT 请求", "peer", remote.ShortString(), "type", req.Type.String(), "err", err)
			_ = s.Reset()
			return
		}

		_ = s.SetWriteDeadline(time.Now().Add(d.cfg.QueryTimeout))
		if err := proto.WriteDelimited(s, resp.Marshal()); err != nil {
			_ = s.Reset()
			return
		}
	}
}

func (d *DHT) handleRequest(remote types.PeerID, req *pb.Message) (*pb.Message, error) {
	switch req.Type {
	case pb.MessageType_PING:
		return &pb.Message{Type: pb.MessageType_PING}, nil

	case pb.MessageType_FIND_NODE:
		target, err := types.PeerIDFromBytes(req.Key)
		if err != nil {
			return nil, err
		}
		resp := &pb.Message{Type: pb.MessageType_FIND_NODE, Key: req.Key}
		for _, e := range d.rt.NearestPeers(target, d.cfg.BucketSize+1) {
			if e.ID == remote {
				continue
			}
			resp.CloserPeers = append(resp.CloserPeers, d.peerToPB(e))
			if len(resp.CloserPeers) == d.cfg.BucketSize {
				break
			}
		}
		return resp, nil

	default:
		return nil, fmt.Errorf("unsupported message type %s", req.Type)
	}
}

// peerToPB 优先使用 Peerstore 中的最新地址
func (d *DHT) peerToPB(e Entry) *pb.Peer {
	addrs := d.host.Peerstore().Addrs(e.ID)
	if len(addrs) == 0 {
		addrs = e.Addrs
	}
	p := &pb.Peer{Id: e.ID.Bytes(), Connection: pb.ConnectionType_NOT_CONNECTED}
	for _, a := range addrs {
		p.Addrs = append(p.Addrs, a.Bytes())
	}
	if d.host.Network().Connectedness(e.ID) == pkgif.Connected {
		p.Connection = pb.ConnectionType_CONNECTED
	}
	return p
}

// peersFromPB 解析响应中的节点，丢弃无效条目
func peersFromPB(in []*pb.Peer) []types.AddrInfo {
	out := make([]types.AddrInfo, 0, len(in))
	for _, p := range in {
		id, err := types.PeerIDFromBytes(p.Id)
		if err != nil {
			continue
		}
		info := types.AddrInfo{ID: id}
		for _, b := range p.Addrs {
			a, err := ma.NewMultiaddrBytes(b)
			if err != nil {
				continue
			}
			info.Addrs = append(info.Addrs, a)
		}
		out = append(out, info)
	}
	return out
}
