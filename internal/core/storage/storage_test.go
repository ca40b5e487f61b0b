package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func openMem(t *testing.T) *Engine {
	t.Helper()
	eng, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestEngine_CRUD(t *testing.T) {
	eng := openMem(t)

	_, err := eng.Get([]byte("missing"))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, eng.Put([]byte("k"), []byte("v")))
	v, err := eng.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	ok, err := eng.Has([]byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, eng.Delete([]byte("k")))
	ok, err = eng.Has([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, eng.Put(nil, []byte("v")), ErrEmptyKey)
}

func TestEngine_Closed(t *testing.T) {
	eng, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, eng.Close())
	require.NoError(t, eng.Close())

	_, err = eng.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, eng.Put([]byte("k"), nil), ErrClosed)
}

func TestStore_PrefixIsolation(t *testing.T) {
	eng := openMem(t)
	a := NewStore(eng, "a/")
	b := NewStore(eng, "b/")

	require.NoError(t, a.Put([]byte("x"), []byte("1")))
	require.NoError(t, b.Put([]byte("x"), []byte("2")))
	require.NoError(t, a.SubStore("sub/").Put([]byte("y"), []byte("3")))

	v, err := b.Get([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)

	keys := map[string]string{}
	require.NoError(t, a.Scan(func(k, v []byte) bool {
		keys[string(k)] = string(v)
		return true
	}))
	assert.Equal(t, map[string]string{"x": "1", "sub/y": "3"}, keys)

	require.NoError(t, a.Clear())
	_, err = a.Get([]byte("x"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = b.Get([]byte("x"))
	assert.NoError(t, err)
}

func TestStore_JSON(t *testing.T) {
	s := NewStore(openMem(t), "j/")
	type rec struct {
		Addrs []string `json:"addrs"`
	}
	require.NoError(t, s.PutJSON([]byte("peer"), rec{Addrs: []string{"/ip4/1.2.3.4/tcp/1"}}, 0))

	var got rec
	require.NoError(t, s.GetJSON([]byte("peer"), &got))
	assert.Equal(t, []string{"/ip4/1.2.3.4/tcp/1"}, got.Addrs)
}

func TestEngine_PersistsOnDisk(t *testing.T) {
	dir := t.TempDir()
	eng, err := Open(Config{Path: dir})
	require.NoError(t, err)
	require.NoError(t, eng.Put([]byte("k"), []byte("v")))
	require.NoError(t, eng.Close())

	eng, err = Open(Config{Path: dir})
	require.NoError(t, err)
	defer eng.Close()
	v, err := eng.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestConfig_Validate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.NoError(t, Config{InMemory: true}.Validate())
	assert.Error(t, Config{Path: "x", GCDiscardRatio: 1}.Validate())
}

func TestModule(t *testing.T) {
	var eng *Engine
	app := fxtest.New(t,
		fx.Supply(&Config{InMemory: true}),
		Module(),
		fx.Populate(&eng),
	)
	app.RequireStart()
	require.NoError(t, eng.Put([]byte("k"), []byte("v")))
	app.RequireStop()

	_, err := eng.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrClosed)
}
