package ping

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-meshnode/internal/core/host/hosttest"
)

func TestPing(t *testing.T) {
	a := hosttest.New(t)
	b := hosttest.New(t)

	svc := NewService()
	svc.Register(b)
	hosttest.Connect(t, a, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rtt, err := Ping(ctx, a, b.ID())
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
	assert.Eventually(t, func() bool { return svc.Served() == 1 }, time.Second, 10*time.Millisecond)
}

func TestPing_Unsupported(t *testing.T) {
	a := hosttest.New(t)
	b := hosttest.New(t)
	hosttest.Connect(t, a, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Ping(ctx, a, b.ID())
	assert.Error(t, err)
}

// badEcho 回显被篡改的数据
type badEcho struct {
	buf bytes.Buffer
}

func (b *badEcho) Write(p []byte) (int, error) {
	q := append([]byte(nil), p...)
	q[0] ^= 0xff
	return b.buf.Write(q)
}

func (b *badEcho) Read(p []byte) (int, error) {
	return b.buf.Read(p)
}

func TestPingOnce_Mismatch(t *testing.T) {
	_, err := pingOnce(&badEcho{})
	assert.ErrorIs(t, err, ErrDataMismatch)
}

func TestPingOnce_ShortEcho(t *testing.T) {
	rw := struct {
		io.Reader
		io.Writer
	}{bytes.NewReader([]byte{1, 2, 3}), io.Discard}
	_, err := pingOnce(rw)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
