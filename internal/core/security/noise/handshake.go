package noise

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/flynn/noise"

	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
	"github.com/dep2p/go-meshnode/pkg/types"
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// session 单次握手状态
type session struct {
	conn       net.Conn
	initiator  bool
	privKey    crypto.PrivateKey
	localPeer  types.PeerID
	staticKey  noise.DHKey
	remotePeer types.PeerID

	hs        *noise.HandshakeState
	remoteKey crypto.PublicKey
	remoteID  types.PeerID
}

func (s *session) fail(reason types.HandshakeReason, err error) error {
	peer := s.remotePeer
	if peer.IsEmpty() {
		peer = s.remoteID
	}
	return &types.HandshakeError{Peer: peer, Reason: reason, Err: err}
}

// ioFail 根据 ctx 与错误类型区分超时和读写失败
func (s *session) ioFail(ctx context.Context, err error) error {
	if ctx.Err() != nil || types.IsTimeout(err) {
		return s.fail(types.HandshakeTimeout, errors.Join(types.ErrTimeout, err))
	}
	return s.fail(types.HandshakeIO, err)
}

// run 执行 Noise XX 握手
func (s *session) run(ctx context.Context, timeout time.Duration) (*secureConn, error) {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		return nil, s.fail(types.HandshakeIO, err)
	}
	defer s.conn.SetDeadline(time.Time{})

	// ctx 取消时打断阻塞读写
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     s.initiator,
		StaticKeypair: s.staticKey,
	})
	if err != nil {
		return nil, s.fail(types.HandshakeIO, fmt.Errorf("init handshake state: %w", err))
	}
	s.hs = hs

	payload, err := makePayload(s.privKey, s.staticKey.Public)
	if err != nil {
		return nil, s.fail(types.HandshakeIO, err)
	}

	var enc, dec *noise.CipherState
	if s.initiator {
		enc, dec, err = s.runInitiator(ctx, payload)
	} else {
		enc, dec, err = s.runResponder(ctx, payload)
	}
	if err != nil {
		return nil, err
	}

	return newSecureConn(s.conn, s.localPeer, s.remoteID, s.remoteKey, enc, dec), nil
}

func (s *session) runInitiator(ctx context.Context, payload []byte) (enc, dec *noise.CipherState, err error) {
	// -> e
	if err := s.writeMessage(ctx, nil); err != nil {
		return nil, nil, err
	}

	// <- e, ee, s, es, payload
	remotePayload, _, _, err := s.readMessage(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := s.checkRemote(remotePayload); err != nil {
		return nil, nil, err
	}

	// -> s, se, payload
	msg, cs1, cs2, err := s.hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, nil, s.fail(types.HandshakeIO, err)
	}
	if err := writeFrame(s.conn, msg); err != nil {
		return nil, nil, s.ioFail(ctx, err)
	}
	return cs1, cs2, nil
}

func (s *session) runResponder(ctx context.Context, payload []byte) (enc, dec *noise.CipherState, err error) {
	// <- e
	if _, _, _, err := s.readMessage(ctx); err != nil {
		return nil, nil, err
	}

	// -> e, ee, s, es, payload
	if err := s.writeMessage(ctx, payload); err != nil {
		return nil, nil, err
	}

	// <- s, se, payload
	remotePayload, cs1, cs2, err := s.readMessage(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := s.checkRemote(remotePayload); err != nil {
		return nil, nil, err
	}
	return cs2, cs1, nil
}

func (s *session) writeMessage(ctx context.Context, payload []byte) error {
	msg, _, _, err := s.hs.WriteMessage(nil, payload)
	if err != nil {
		return s.fail(types.HandshakeIO, err)
	}
	if err := writeFrame(s.conn, msg); err != nil {
		return s.ioFail(ctx, err)
	}
	return nil
}

func (s *session) readMessage(ctx context.Context) ([]byte, *noise.CipherState, *noise.CipherState, error) {
	frame, err := readFrame(s.conn)
	if err != nil {
		return nil, nil, nil, s.ioFail(ctx, err)
	}
	payload, cs1, cs2, err := s.hs.ReadMessage(nil, frame)
	if err != nil {
		return nil, nil, nil, s.fail(types.HandshakeIO, fmt.Errorf("decrypt handshake message: %w", err))
	}
	return payload, cs1, cs2, nil
}

// checkRemote 校验远端身份，并与期望的 PeerID 比对
func (s *session) checkRemote(payload []byte) error {
	pub, id, reason, err := verifyPayload(payload, s.hs.PeerStatic())
	if err != nil {
		return s.fail(reason, err)
	}
	s.remoteKey = pub
	s.remoteID = id

	if !s.remotePeer.IsEmpty() && id != s.remotePeer {
		return s.fail(types.HandshakePeerIDMismatch,
			fmt.Errorf("expected %s, got %s", s.remotePeer.ShortString(), id.ShortString()))
	}
	return nil
}

// ============================================================================
//                              帧读写
// ============================================================================

func writeFrame(w io.Writer, data []byte) error {
	if len(data) > maxFrameSize {
		return fmt.Errorf("frame too large: %d", len(data))
	}
	buf := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(buf, uint16(len(data)))
	copy(buf[2:], data)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	data := make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
