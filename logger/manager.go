// Package logger provides module-bound, context-aware zap loggers.
//
// Each subsystem asks the Manager for a logger bound to its module name;
// records carry app_name, module, and the request id found in the context.
package logger

import (
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Manager hands out per-module loggers (thread-safe, created on demand).
type Manager struct {
	baseConfig ManagerConfig
	loggers    map[string]*Logger
	mu         sync.RWMutex
}

// NewManager creates an independent Manager instance.
// Zero-valued config fields are filled with defaults.
func NewManager(cfg ManagerConfig) *Manager {
	cfg.ApplyDefaults()
	return &Manager{
		baseConfig: cfg,
		loggers:    make(map[string]*Logger),
	}
}

// GetLogger returns the logger for a module, creating it on first use.
// The returned logger already carries the module field.
func (m *Manager) GetLogger(moduleName string) *Logger {
	m.mu.RLock()
	if l, ok := m.loggers[moduleName]; ok {
		m.mu.RUnlock()
		return l
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.loggers[moduleName]; ok {
		return l
	}

	base := m.buildZapLogger(moduleName).
		With(zap.String("module", moduleName)).
		WithOptions(zap.AddCallerSkip(1))

	l := &Logger{
		base:   base,
		module: moduleName,
		config: &m.baseConfig,
	}
	m.loggers[moduleName] = l
	return l
}

// Sync flushes every logger created by this manager.
func (m *Manager) Sync() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.loggers {
		_ = l.base.Sync()
	}
}

func (m *Manager) buildZapLogger(moduleName string) *zap.Logger {
	level := zapcore.InfoLevel
	_ = level.UnmarshalText([]byte(m.baseConfig.Level))

	var encoder zapcore.Encoder
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if m.baseConfig.Encoding == "console" {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	var cores []zapcore.Core
	if m.baseConfig.EnableConsole {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(stderr())), level))
	}
	if m.baseConfig.EnableFile {
		writer := &lumberjack.Logger{
			Filename:   filepath.Join(m.baseConfig.BaseLogDir, moduleName+".log"),
			MaxSize:    m.baseConfig.MaxSize,
			MaxBackups: m.baseConfig.MaxBackups,
			MaxAge:     m.baseConfig.MaxAge,
			Compress:   m.baseConfig.Compress,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(writer), level))
	}
	if len(cores) == 0 {
		return zap.NewNop()
	}

	opts := []zap.Option{}
	if m.baseConfig.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(zapcore.NewTee(cores...), opts...)
}

// NewNop returns a logger that discards everything. Used in tests and as a
// safe default for components constructed without a logger.
func NewNop() *Logger {
	return &Logger{base: zap.NewNop(), module: "nop"}
}

// NewTest returns a development logger writing to stderr, for tests that
// want readable output.
func NewTest(module string) *Logger {
	base, _ := zap.NewDevelopment()
	return &Logger{
		base:   base.With(zap.String("module", module)),
		module: module,
	}
}
