package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-meshnode/pkg/lib/crypto"
)

func TestLoadOrCreate_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "node.pem")

	id1, err := LoadOrCreate(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	id2, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, id1.PeerID(), id2.PeerID())
	assert.True(t, id1.PublicKey().Equals(id2.PublicKey()))
}

func TestLoadOrCreate_Ephemeral(t *testing.T) {
	id1, err := LoadOrCreate("")
	require.NoError(t, err)
	id2, err := LoadOrCreate("")
	require.NoError(t, err)
	assert.NotEqual(t, id1.PeerID(), id2.PeerID())
}

func TestLoadOrCreate_CorruptFileNotReplaced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.pem")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

	_, err := LoadOrCreate(path)
	require.ErrorIs(t, err, ErrInvalidPEM)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "garbage", string(data))
}

func TestIdentity_SignAndPeerID(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	sig, err := id.Sign([]byte("payload"))
	require.NoError(t, err)
	assert.True(t, id.PublicKey().Verify([]byte("payload"), sig))
	assert.True(t, crypto.PeerIDMatchesKey(id.PeerID(), id.PublicKey()))

	_, err = New(nil)
	assert.ErrorIs(t, err, crypto.ErrNilPrivateKey)
}

func TestModule_PrivateKeyTakesPriority(t *testing.T) {
	priv, _, err := crypto.GenerateEd25519Key(nil)
	require.NoError(t, err)
	want, err := crypto.PeerIDFromPrivateKey(priv)
	require.NoError(t, err)

	var got *Identity
	app := fxtest.New(t,
		fx.Supply(&Config{PrivateKey: priv, KeyFile: filepath.Join(t.TempDir(), "unused.pem")}),
		Module(),
		fx.Populate(&got),
	)
	app.RequireStart()
	defer app.RequireStop()

	assert.Equal(t, want, got.PeerID())
}
