package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dep2p/go-meshnode/config"
)

// ============================================================================
//                              配置加载（CLI 专用）
// ============================================================================

// cliFlags 命令行参数
type cliFlags struct {
	configFile string
	listen     string
	identity   string
	bootstrap  string
	dhtMode    string
	metrics    string
	logLevel   string

	topic      string
	publish    string
	interval   time.Duration
	startDelay time.Duration

	showVersion bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*cliFlags, error) {
	f := &cliFlags{}

	// ─────────────────────────────────────────────────────────────────────
	// 节点参数（覆盖配置文件与环境变量）
	// ─────────────────────────────────────────────────────────────────────
	fs.StringVar(&f.configFile, "config", "", "JSON 配置文件路径")
	fs.StringVar(&f.listen, "listen", "", "监听地址，逗号分隔（如 /ip4/0.0.0.0/tcp/4001,/ip4/0.0.0.0/tcp/4002/ws）")
	fs.StringVar(&f.identity, "identity", "", "身份密钥文件路径（不存在时生成）")
	fs.StringVar(&f.bootstrap, "bootstrap", "", "引导节点，逗号分隔的 /…/p2p/<id> 或 /dnsaddr/<domain>")
	fs.StringVar(&f.dhtMode, "dht-mode", "", "DHT 模式：server、client 或 off")
	fs.StringVar(&f.metrics, "metrics", "", "Prometheus /metrics 监听地址（如 127.0.0.1:9090）")
	fs.StringVar(&f.logLevel, "log-level", "", "日志级别（如 info 或 dht=debug,info）")

	// ─────────────────────────────────────────────────────────────────────
	// 发布订阅
	// ─────────────────────────────────────────────────────────────────────
	fs.StringVar(&f.topic, "topic", "meshnode-demo", "订阅并发布的主题")
	fs.StringVar(&f.publish, "publish", "", "定时发布的消息内容，为空只订阅")
	fs.DurationVar(&f.interval, "interval", 10*time.Second, "发布间隔")
	fs.DurationVar(&f.startDelay, "start-delay", 2*time.Second, "启动后延迟订阅的时间")

	fs.BoolVar(&f.showVersion, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if f.interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", f.interval)
	}
	if f.topic == "" {
		return nil, fmt.Errorf("topic is empty")
	}
	return f, nil
}

// loadConfig 组装最终配置
//
// 优先级（从高到低）：
//  1. 命令行参数
//  2. 环境变量（MESHNODE_* 前缀）
//  3. 配置文件
//  4. 默认值
func loadConfig(f *cliFlags, lookup config.LookupFunc) (*config.Config, error) {
	var cfg *config.Config
	if f.configFile != "" {
		var err error
		cfg, err = config.LoadFile(f.configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
	} else {
		cfg = config.NewConfig()
	}

	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, fmt.Errorf("环境变量无效: %w", err)
	}

	if f.listen != "" {
		cfg.Transport.ListenAddrs = splitCSV(f.listen)
	}
	if f.identity != "" {
		cfg.Identity.KeyFile = f.identity
	}
	if f.bootstrap != "" {
		cfg.Discovery.BootstrapPeers = splitCSV(f.bootstrap)
	}
	switch f.dhtMode {
	case "":
	case "off":
		cfg.Discovery.DHT.Enabled = false
	default:
		cfg.Discovery.DHT.Enabled = true
		cfg.Discovery.DHT.Mode = f.dhtMode
	}
	if f.metrics != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddr = f.metrics
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printVersion() {
	fmt.Fprintf(os.Stdout, "meshnode %s\n", versionString())
}
