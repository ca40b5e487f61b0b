package main

import (
	"flag"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-meshnode/config"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func envMap(m map[string]string) config.LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestParseFlags_Defaults(t *testing.T) {
	f, err := parseFlags(newFlagSet(), nil)
	require.NoError(t, err)
	assert.Equal(t, "meshnode-demo", f.topic)
	assert.Equal(t, 10*time.Second, f.interval)
	assert.Empty(t, f.publish)
}

func TestParseFlags_Invalid(t *testing.T) {
	_, err := parseFlags(newFlagSet(), []string{"-interval", "0s"})
	assert.Error(t, err)

	_, err = parseFlags(newFlagSet(), []string{"-topic", ""})
	assert.Error(t, err)

	_, err = parseFlags(newFlagSet(), []string{"-no-such-flag"})
	assert.Error(t, err)
}

func TestLoadConfig_Precedence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "node.json")
	fromFile := config.NewConfig()
	fromFile.Log.Level = "warn"
	fromFile.ConnMgr.LowWater = 3
	require.NoError(t, fromFile.SaveFile(file))

	f, err := parseFlags(newFlagSet(), []string{
		"-config", file,
		"-listen", "/ip4/127.0.0.1/tcp/4001, /ip4/127.0.0.1/tcp/4002/ws",
		"-dht-mode", "client",
		"-log-level", "dht=debug,info",
	})
	require.NoError(t, err)

	cfg, err := loadConfig(f, envMap(map[string]string{
		"MESHNODE_LOG_LEVEL":  "error",
		"MESHNODE_HIGH_WATER": "20",
	}))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.ConnMgr.LowWater, "file")
	assert.Equal(t, 20, cfg.ConnMgr.HighWater, "env")
	assert.Equal(t, "dht=debug,info", cfg.Log.Level, "flag beats env")
	assert.Equal(t, []string{"/ip4/127.0.0.1/tcp/4001", "/ip4/127.0.0.1/tcp/4002/ws"}, cfg.Transport.ListenAddrs)
	assert.Equal(t, "client", cfg.Discovery.DHT.Mode)
}

func TestLoadConfig_DHTOffAndMetrics(t *testing.T) {
	f, err := parseFlags(newFlagSet(), []string{"-dht-mode", "off", "-metrics", "127.0.0.1:9090"})
	require.NoError(t, err)

	cfg, err := loadConfig(f, envMap(nil))
	require.NoError(t, err)
	assert.False(t, cfg.Discovery.DHT.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9090", cfg.Metrics.ListenAddr)
}

func TestLoadConfig_Errors(t *testing.T) {
	f, err := parseFlags(newFlagSet(), []string{"-metrics", "no-port"})
	require.NoError(t, err)
	_, err = loadConfig(f, envMap(nil))
	assert.Error(t, err)

	f, err = parseFlags(newFlagSet(), nil)
	require.NoError(t, err)
	_, err = loadConfig(f, envMap(map[string]string{"MESHNODE_LOW_WATER": "many"}))
	assert.Error(t, err)

	f, err = parseFlags(newFlagSet(), []string{"-config", filepath.Join(t.TempDir(), "missing.json")})
	require.NoError(t, err)
	_, err = loadConfig(f, envMap(nil))
	assert.Error(t, err)
}
