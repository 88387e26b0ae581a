package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	mu           sync.RWMutex
)

// 未调用 Init 之前也保证有可用的 logger。
func init() {
	globalLogger = zap.NewNop()
}

// Init 按日志级别初始化全局 logger，级别非法时回退到 info。
func Init(level string) error {
	cfg := zap.NewProductionConfig()

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	l, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	globalLogger = l
	return nil
}

// Logger 返回当前全局 logger。
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

// Sync 刷新缓冲日志。
func Sync() error {
	return Logger().Sync()
}

// WithModule 返回带 module 字段的子 logger。
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}
