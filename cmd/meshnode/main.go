// Package main 提供 meshnode 命令行入口
//
// 节点启动后延迟订阅 -topic，若指定 -publish 则按 -interval 定时发布，
// 收到的消息写入日志。
//
//	meshnode -listen /ip4/0.0.0.0/tcp/4001 -bootstrap /ip4/10.0.0.1/tcp/4001/p2p/QmPeer \
//	    -topic chat -publish "hello" -interval 5s -metrics 127.0.0.1:9090
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	meshnode "github.com/dep2p/go-meshnode"
	"github.com/dep2p/go-meshnode/pkg/lib/log"
	"github.com/dep2p/go-meshnode/pkg/types"
)

var logger = log.Logger("meshnode/cmd")

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := parseFlags(flag.NewFlagSet("meshnode", flag.ContinueOnError), args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.showVersion {
		printVersion()
		return nil
	}

	cfg, err := loadConfig(flags, os.LookupEnv)
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}
	levels, err := cfg.Log.Levels()
	if err != nil {
		return err
	}
	log.Setup(os.Stderr, cfg.Log.Format, levels)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("启动 meshnode 节点", "version", meshnode.Version)
	node, err := meshnode.Start(ctx, meshnode.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() {
		if err := node.Close(); err != nil {
			logger.Warn("关闭节点失败", "error", err)
		}
	}()

	printNodeInfo(node)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.ListenAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, node, cfg.Metrics.ListenAddr) })
	}
	g.Go(func() error { return logEvents(gctx, node) })
	g.Go(func() error { return runTopic(gctx, node, flags) })

	err = g.Wait()
	fmt.Println("\n正在关闭节点...")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ════════════════════════════════════════════════════════════════════════════
//                              订阅与发布
// ════════════════════════════════════════════════════════════════════════════

// runTopic 延迟订阅主题，按间隔发布
func runTopic(ctx context.Context, node *meshnode.Node, f *cliFlags) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.startDelay):
	}

	sub, err := node.Subscribe(f.topic)
	if err != nil {
		return fmt.Errorf("订阅 %s 失败: %w", f.topic, err)
	}
	defer sub.Cancel()
	logger.Info("已订阅主题", "topic", f.topic)

	if f.publish == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			res, err := node.Publish(ctx, f.topic, []byte(f.publish))
			if err != nil {
				// 单次发布失败不终止进程
				logger.Warn("发布失败", "topic", f.topic, "error", err)
				continue
			}
			logger.Info("已发布消息", "topic", f.topic, "deliveredToPeers", res.DeliveredToPeers)
		}
	}
}

// logEvents 记录远端消息与连接变化
func logEvents(ctx context.Context, node *meshnode.Node) error {
	sub, err := node.Events(
		types.EventMessageReceived,
		types.EventConnectionOpened,
		types.EventConnectionClosed,
	)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-sub.Out():
			if !ok {
				return nil
			}
			switch e := evt.(type) {
			case types.MessageReceived:
				logger.Info("收到消息",
					"topic", e.Topic,
					"from", e.From.ShortString(),
					"via", e.ReceivedFrom.ShortString(),
					"data", string(e.Data))
			case types.ConnectionOpened:
				logger.Info("连接已建立", "peer", e.Peer.ShortString(), "direction", e.Direction.String())
			case types.ConnectionClosed:
				logger.Info("连接已断开", "peer", e.Peer.ShortString())
			}
		}
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              指标
// ════════════════════════════════════════════════════════════════════════════

func serveMetrics(ctx context.Context, node *meshnode.Node, addr string) error {
	reg, err := node.MetricsRegistry()
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("指标服务已启动", "addr", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              输出
// ════════════════════════════════════════════════════════════════════════════

func printNodeInfo(node *meshnode.Node) {
	fmt.Println()
	fmt.Println("╔════════════════════════════════════════════════════════════════════════╗")
	fmt.Printf("║  meshnode %-60s  ║\n", meshnode.Version)
	fmt.Println("╠════════════════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  Node ID: %-60s  ║\n", node.ID())
	fmt.Println("║                                                                        ║")
	fmt.Println("║  Addresses (copy to share):                                            ║")
	for _, addr := range node.ShareableAddrs() {
		fmt.Printf("║    %s\n", addr)
	}
	fmt.Println("╚════════════════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

func versionString() string {
	return fmt.Sprintf("%s (%s %s/%s)", meshnode.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
