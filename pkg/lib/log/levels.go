package log

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// 环境变量
const (
	// EnvLogLevel 日志级别，格式：dht=debug,pubsub=warn,info
	EnvLogLevel = "MESHNODE_LOG_LEVEL"
	// EnvLogFormat 日志格式：text（默认）或 json
	EnvLogFormat = "MESHNODE_LOG_FORMAT"
)

// Levels 按组件配置的日志级别
//
// 组件名按前缀匹配，"discovery" 同时作用于 "discovery/dht" 与
// "discovery/bootstrap"，最长前缀优先。
type Levels struct {
	Default    slog.Level
	Components map[string]slog.Level
}

// DefaultLevels 返回默认级别配置（全部 info）
func DefaultLevels() Levels {
	return Levels{Default: slog.LevelInfo}
}

// WithDefault 返回替换默认级别后的副本
func (lv Levels) WithDefault(level slog.Level) Levels {
	out := Levels{Default: level, Components: make(map[string]slog.Level, len(lv.Components))}
	for k, v := range lv.Components {
		out.Components[k] = v
	}
	return out
}

// For 返回组件生效的日志级别
func (lv Levels) For(component string) slog.Level {
	best := -1
	level := lv.Default
	for prefix, l := range lv.Components {
		if component == prefix || strings.HasPrefix(component, prefix+"/") {
			if len(prefix) > best {
				best = len(prefix)
				level = l
			}
		}
	}
	return level
}

// ParseLevels 解析级别配置字符串
//
// 示例："discovery/dht=debug,pubsub=warn,info"
func ParseLevels(s string) (Levels, error) {
	lv := DefaultLevels()
	s = strings.TrimSpace(s)
	if s == "" {
		return lv, nil
	}

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, hasName := strings.Cut(part, "=")
		if !hasName {
			level, err := ParseLevel(name)
			if err != nil {
				return lv, err
			}
			lv.Default = level
			continue
		}
		level, err := ParseLevel(value)
		if err != nil {
			return lv, err
		}
		if lv.Components == nil {
			lv.Components = make(map[string]slog.Level)
		}
		lv.Components[strings.TrimSpace(name)] = level
	}
	return lv, nil
}

// ParseLevel 解析单个日志级别
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// LevelsFromEnv 从环境变量读取级别配置，解析失败时使用默认值
func LevelsFromEnv() Levels {
	lv, err := ParseLevels(os.Getenv(EnvLogLevel))
	if err != nil {
		return DefaultLevels()
	}
	return lv
}
