// Package log 提供 meshnode 统一日志接口
//
// 基于标准库 log/slog 封装：
//   - 每个组件通过 Logger("core/swarm") 获取 LazyLogger
//   - 支持按组件配置日志级别（MESHNODE_LOG_LEVEL=dht=debug,info）
//   - 支持文本与 JSON 输出（MESHNODE_LOG_FORMAT=json）
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// 日志级别常量（从 slog 导出，方便使用）
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var (
	mu       sync.RWMutex
	base     *slog.Logger
	levels   = DefaultLevels()
	levelVar slog.LevelVar
)

// SetDefault 设置默认 logger
func SetDefault(l *slog.Logger) {
	mu.Lock()
	base = l
	mu.Unlock()
	slog.SetDefault(l)
}

// Default 返回当前默认 logger
func Default() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Setup 按格式、级别配置和输出目标重建默认 logger
//
// format 为 "json" 时使用 JSON 输出，其他值使用文本输出。
func Setup(w io.Writer, format string, lv Levels) {
	if w == nil {
		w = os.Stderr
	}
	// handler 放行所有级别，由 LazyLogger 按组件过滤
	levelVar.Set(slog.LevelDebug)
	opts := &slog.HandlerOptions{Level: &levelVar}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	mu.Lock()
	levels = lv
	base = slog.New(h)
	mu.Unlock()
}

// SetOutput 设置日志输出目标，保留当前级别配置
func SetOutput(w io.Writer) {
	Setup(w, "text", currentLevels())
}

// SetLevel 设置所有组件的默认日志级别
func SetLevel(level slog.Level) {
	mu.Lock()
	levels = levels.WithDefault(level)
	mu.Unlock()
}

// Discard 丢弃所有日志输出（测试使用）
func Discard() {
	Setup(io.Discard, "text", DefaultLevels())
}

func currentLevels() Levels {
	mu.RLock()
	defer mu.RUnlock()
	return levels
}

// ============================================================================
//                              LazyLogger
// ============================================================================

// LazyLogger 懒加载 logger
//
// 每次日志调用时都读取当前的默认 logger 与级别配置，
// 支持在运行时切换输出目标与级别。
//
// 使用方式：
//
//	var logger = log.Logger("core/swarm")
//	logger.Info("连接已建立", "peer", id.ShortString())
type LazyLogger struct {
	component string
}

// Logger 返回带组件名的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

// Enabled 返回组件在该级别是否输出
func (l *LazyLogger) Enabled(level slog.Level) bool {
	return level >= currentLevels().For(l.component)
}

func (l *LazyLogger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	Default().With("component", l.component).Log(ctx, level, msg, args...)
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) {
	l.log(context.Background(), LevelDebug, msg, args...)
}

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) {
	l.log(context.Background(), LevelInfo, msg, args...)
}

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) {
	l.log(context.Background(), LevelWarn, msg, args...)
}

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) {
	l.log(context.Background(), LevelError, msg, args...)
}

// DebugContext 带 context 的 Debug 日志
func (l *LazyLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LevelDebug, msg, args...)
}

// InfoContext 带 context 的 Info 日志
func (l *LazyLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LevelInfo, msg, args...)
}

// Component 返回组件名
func (l *LazyLogger) Component() string {
	return l.component
}

// ============================================================================
//                              工具函数
// ============================================================================

// TruncateID 安全截取 ID 用于日志显示
func TruncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return id[:maxLen]
}

func init() {
	Setup(os.Stderr, os.Getenv(EnvLogFormat), LevelsFromEnv())
}
