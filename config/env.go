package config

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "MESHNODE_"

// LookupFunc 环境变量查询函数，签名与 os.LookupEnv 一致
type LookupFunc func(key string) (string, bool)

// envBinding 环境变量到配置字段的绑定
type envBinding struct {
	key string
	set func(c *Config, v string) error
}

var envBindings = []envBinding{
	{"IDENTITY_KEY_FILE", func(c *Config, v string) error { c.Identity.KeyFile = v; return nil }},
	{"LISTEN_ADDRS", func(c *Config, v string) error { c.Transport.ListenAddrs = splitList(v); return nil }},
	{"ENABLE_TCP", boolSetter(func(c *Config) *bool { return &c.Transport.EnableTCP })},
	{"ENABLE_WEBSOCKET", boolSetter(func(c *Config) *bool { return &c.Transport.EnableWebSocket })},
	{"DIAL_TIMEOUT", func(c *Config, v string) error { return c.Transport.DialTimeout.Set(v) }},
	{"BOOTSTRAP_PEERS", func(c *Config, v string) error { c.Discovery.BootstrapPeers = splitList(v); return nil }},
	{"BOOTSTRAP_RETRY_INTERVAL", func(c *Config, v string) error { return c.Discovery.Bootstrap.RetryInterval.Set(v) }},
	{"DHT_ENABLED", boolSetter(func(c *Config) *bool { return &c.Discovery.DHT.Enabled })},
	{"DHT_MODE", func(c *Config, v string) error { c.Discovery.DHT.Mode = v; return nil }},
	{"DNS_NAMESERVERS", func(c *Config, v string) error { c.Discovery.DNSAddr.Nameservers = splitList(v); return nil }},
	{"LOW_WATER", intSetter(func(c *Config) *int { return &c.ConnMgr.LowWater })},
	{"HIGH_WATER", intSetter(func(c *Config) *int { return &c.ConnMgr.HighWater })},
	{"HEARTBEAT_INTERVAL", func(c *Config, v string) error { return c.PubSub.HeartbeatInterval.Set(v) }},
	{"DATA_DIR", func(c *Config, v string) error { c.Storage.DataDir = v; return nil }},
	{"METRICS_ENABLED", boolSetter(func(c *Config) *bool { return &c.Metrics.Enabled })},
	{"METRICS_ADDR", func(c *Config, v string) error { c.Metrics.ListenAddr = v; return nil }},
	{"LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"LOG_FORMAT", func(c *Config, v string) error { c.Log.Format = v; return nil }},
}

// ApplyEnv 用 MESHNODE_* 环境变量覆盖配置
//
// 所有无法解析的变量都会报告，已解析的变量仍然生效。
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	var errs error
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.key)
		if !ok {
			continue
		}
		if err := b.set(c, strings.TrimSpace(v)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, b.key, err))
		}
	}
	return errs
}

// EnvKeys 返回支持的环境变量名
func EnvKeys() []string {
	keys := make([]string, len(envBindings))
	for i, b := range envBindings {
		keys[i] = EnvPrefix + b.key
	}
	return keys
}

func boolSetter(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

// splitList 按逗号或空白切分列表
func splitList(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}
