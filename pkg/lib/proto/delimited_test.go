package proto

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestDelimited(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDelimited(&buf, []byte("first")))
	require.NoError(t, WriteDelimited(&buf, bytes.Repeat([]byte{7}, 300)))
	require.NoError(t, WriteDelimited(&buf, nil))

	// 非 ByteReader 的读取方不能多读
	r := struct{ io.Reader }{&buf}
	got, err := ReadDelimited(r, 1024)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)

	got, err = ReadDelimited(r, 1024)
	require.NoError(t, err)
	assert.Len(t, got, 300)

	got, err = ReadDelimited(r, 1024)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ReadDelimited(r, 1024)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDelimited_Limits(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDelimited(&buf, make([]byte, 100)))
	_, err := ReadDelimited(&buf, 99)
	assert.ErrorIs(t, err, ErrMessageTooLarge)

	buf.Reset()
	require.NoError(t, WriteDelimited(&buf, make([]byte, 100)))
	buf.Truncate(50)
	_, err = ReadDelimited(&buf, 1024)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFramed(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFramed(&buf, []byte("hello from browser p2p")))
	assert.Equal(t, []byte{0, 0, 0, 22}, buf.Bytes()[:4])

	got, err := ReadFramed(&buf, 1024)
	require.NoError(t, err)
	assert.Equal(t, "hello from browser p2p", string(got))

	require.NoError(t, WriteFramed(&buf, make([]byte, 2048)))
	_, err = ReadFramed(&buf, 1024)
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestWalk(t *testing.T) {
	var b []byte
	b = AppendString(b, 1, "topic")
	b = AppendVarint(b, 2, 42)
	b = protowire.AppendTag(b, 3, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 9)
	b = AppendBool(b, 4, true)

	var fields []Field
	require.NoError(t, Walk(b, func(f Field) error {
		fields = append(fields, f)
		return nil
	}))
	require.Len(t, fields, 3)
	assert.Equal(t, "topic", fields[0].String())
	assert.Equal(t, uint64(42), fields[1].Varint)
	assert.Equal(t, protowire.Number(4), fields[2].Num)

	err := Walk(b[:len(b)-1], func(Field) error { return nil })
	assert.ErrorIs(t, err, ErrMalformed)
}
