package log

import (
	"encoding/json"
	//nolint:depguard
	"log"
	"os"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// for init only
func Fatal(v ...any) {
	log.Fatal(v...)
}

// Logger is a zap logger with a dotted module path. Module loggers pick their
// level from LOG_LEVEL__<PATH> environment variables.
type Logger struct {
	*zap.Logger
	names   []string
	modules *moduleSet
}

// moduleSet builds module loggers and caches them by path, so per-stream
// Module calls do not allocate a new core each time.
type moduleSet struct {
	build func(names []string) *zap.Logger
	mu    sync.Mutex
	byKey map[string]*zap.Logger
}

func newModuleSet(build func(names []string) *zap.Logger) *moduleSet {
	return &moduleSet{build: build, byKey: map[string]*zap.Logger{}}
}

func (m *moduleSet) get(names []string) *zap.Logger {
	key := strings.Join(names, ".")
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.byKey[key]; ok {
		return l
	}
	l := m.build(names)
	m.byKey[key] = l
	return l
}

func (l *Logger) Module(name string) *Logger {
	names := make([]string, len(l.names)+1)
	copy(names, l.names)
	names[len(l.names)] = name

	return &Logger{
		Logger:  l.modules.get(names),
		names:   names,
		modules: l.modules,
	}
}

// With returns a child logger carrying fields, keeping module naming intact.
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{
		Logger:  l.Logger.With(fields...),
		names:   l.names,
		modules: l.modules,
	}
}

func NewLogger(configFile string) (*Logger, error) {
	if configFile == "" {
		return newDefaultLogger(), nil
	}
	return loadLoggerFromFile(configFile)
}

// loadLoggerFromFile builds from a JSON zap.Config; module levels then follow
// the file, not the environment.
func loadLoggerFromFile(configFile string) (*Logger, error) {
	bs, err := os.ReadFile(configFile)
	if err != nil {
		return nil, err
	}

	cfg := zap.Config{}
	if err := json.Unmarshal(bs, &cfg); err != nil {
		return nil, err
	}

	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{
		Logger: zapLogger.Named("main"),
		modules: newModuleSet(func(names []string) *zap.Logger {
			return zapLogger.Named(strings.Join(names, "."))
		}),
	}, nil
}

func newDefaultLogger() *Logger {
	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName: func(name string, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + name + "]")
		},
	})
	writer := zapcore.Lock(zapcore.AddSync(os.Stdout))

	newZap := func(lv zapcore.Level) *zap.Logger {
		core := zapcore.NewCore(encoder, writer, zap.NewAtomicLevelAt(lv))
		return zap.New(core, zap.AddStacktrace(zapcore.FatalLevel))
	}

	return &Logger{
		Logger: newZap(moduleLevel(nil)).Named("main"),
		modules: newModuleSet(func(names []string) *zap.Logger {
			lv := moduleLevel(names)
			logger := newZap(lv).Named(strings.Join(names, "."))
			logger.Debug("use module log", zap.Stringer("level", lv))
			return logger
		}),
	}
}

func NewTest(t *testing.T) *Logger {
	logger := zaptest.NewLogger(t)
	return &Logger{
		Logger: logger,
		modules: newModuleSet(func(names []string) *zap.Logger {
			return logger.Named(strings.Join(names, "."))
		}),
	}
}

func NewNop() *Logger {
	logger := zap.NewNop()
	return &Logger{
		Logger: logger,
		modules: newModuleSet(func(_ []string) *zap.Logger {
			return logger
		}),
	}
}
